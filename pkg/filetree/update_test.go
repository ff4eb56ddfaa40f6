package filetree

import "testing"

func sampleTree() []Asset {
	return []Asset{
		&Directory{Name: "src", Loaded: true, Expanded: true, Children: []Asset{
			NewFile("index.ts"),
			&Directory{Name: "components", Loaded: true, Children: []Asset{
				NewFile("Button.tsx"),
				NewDirectory("icons"),
			}},
		}},
		NewFile("package.json"),
		NewDirectory("public"),
	}
}

func TestFindDirectory(t *testing.T) {
	assets := sampleTree()

	tests := []struct {
		path     string
		policy   MatchPolicy
		found    bool
		fullPath string
	}{
		{"/src", MatchLastSegment, true, "/src"},
		{"/src/components", MatchLastSegment, true, "/src/components"},
		{"/src/components/icons", MatchFullPath, true, "/src/components/icons"},
		{"src/components/", MatchFullPath, true, "/src/components"},
		{"/src/components/Button.tsx", MatchFullPath, false, ""},
		{"/package.json", MatchLastSegment, false, ""},
		{"/icons", MatchFullPath, false, ""},
		{"/icons", MatchLastSegment, true, "/src/components/icons"},
		{"/nonexistent", MatchLastSegment, false, ""},
	}

	for _, tt := range tests {
		d, p, ok := FindDirectory(assets, tt.path, tt.policy)
		if ok != tt.found {
			t.Errorf("FindDirectory(%q, %s) found=%v, want %v", tt.path, tt.policy, ok, tt.found)
			continue
		}
		if ok && (p != tt.fullPath || d.Name != LastSegment(tt.fullPath)) {
			t.Errorf("FindDirectory(%q, %s) = %q (%s), want %q", tt.path, tt.policy, p, d.Name, tt.fullPath)
		}
	}
}

func TestFindDirectory_PrefersExactPath(t *testing.T) {
	nested := &Directory{Name: "lib", Loaded: true}
	top := NewDirectory("lib")
	assets := []Asset{&Directory{Name: "a", Loaded: true, Children: []Asset{nested}}, top}

	d, p, ok := FindDirectory(assets, "/lib", MatchLastSegment)
	if !ok || d != top || p != "/lib" {
		t.Errorf("FindDirectory(/lib) = %q, want the top-level /lib", p)
	}
	d, p, ok = FindDirectory(assets, "/x/lib", MatchLastSegment)
	if !ok || d != nested || p != "/a/lib" {
		t.Errorf("FindDirectory(/x/lib) = %q, want fallback to /a/lib", p)
	}
}

func TestFindDirectory_SkipsUnloadedChildren(t *testing.T) {
	// Children of an unloaded directory are never searched even if present.
	assets := []Asset{&Directory{Name: "a", Children: []Asset{NewDirectory("b")}}}
	if _, _, ok := FindDirectory(assets, "/a/b", MatchFullPath); ok {
		t.Error("found a node under an unloaded directory")
	}
}

func TestUpdateDirectory_NoMatchReturnsSameSlice(t *testing.T) {
	assets := sampleTree()
	out, changed := UpdateDirectory(assets, "/missing", MatchFullPath, func(d *Directory) *Directory {
		t.Fatal("fn must not be called")
		return d
	})
	if changed {
		t.Error("changed = true for a missing path")
	}
	if &out[0] != &assets[0] {
		t.Error("unchanged update returned a new slice")
	}
}

func TestUpdateDirectory_NilKeepsNode(t *testing.T) {
	assets := sampleTree()
	calls := 0
	out, changed := UpdateDirectory(assets, "/src/components", MatchFullPath, func(*Directory) *Directory {
		calls++
		return nil
	})
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if changed || out[0] != assets[0] {
		t.Error("returning nil from fn must leave the tree as is")
	}
}

func TestUpdateDirectory_ReceivesCopy(t *testing.T) {
	assets := sampleTree()
	original := assets[0].(*Directory).Children[1].(*Directory)

	out, changed := UpdateDirectory(assets, "/src/components", MatchFullPath, func(d *Directory) *Directory {
		if d == original {
			t.Error("fn received the stored pointer")
		}
		d.Expanded = true
		return d
	})
	if !changed {
		t.Fatal("expected a change")
	}
	if original.Expanded {
		t.Error("stored directory was mutated")
	}
	updated := out[0].(*Directory).Children[1].(*Directory)
	if !updated.Expanded {
		t.Error("update not applied")
	}
	if out[0].(*Directory).Children[0] != assets[0].(*Directory).Children[0] {
		t.Error("sibling file reallocated")
	}
	if out[1] != assets[1] || out[2] != assets[2] {
		t.Error("root siblings reallocated")
	}
}

func TestUpdateDirectory_MatchStopsDescent(t *testing.T) {
	// Under last-segment matching a nested same-named directory below a
	// matched one is not visited.
	inner := NewDirectory("x")
	outer := &Directory{Name: "x", Loaded: true, Children: []Asset{inner}}
	calls := 0
	UpdateDirectory([]Asset{outer}, "/x/x", MatchLastSegment, func(d *Directory) *Directory {
		calls++
		return d
	})
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestParseMatchPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    MatchPolicy
		wantErr bool
	}{
		{"", MatchLastSegment, false},
		{"segment", MatchLastSegment, false},
		{"FULL", MatchFullPath, false},
		{"full-path", MatchFullPath, false},
		{"exact", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMatchPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMatchPolicy(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMatchPolicy(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
