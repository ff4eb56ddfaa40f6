package filetree

import (
	"fmt"
	"strings"
)

// MatchPolicy decides which directories a path addresses.
type MatchPolicy int

const (
	// MatchLastSegment compares only the last segment of the target path
	// against directory names at every level. Two directories with the same
	// name at different depths both match, and both receive the update.
	MatchLastSegment MatchPolicy = iota

	// MatchFullPath compares the accumulated path from the root and only
	// descends into ancestors of the target.
	MatchFullPath
)

func (p MatchPolicy) String() string {
	switch p {
	case MatchLastSegment:
		return "segment"
	case MatchFullPath:
		return "full"
	default:
		return fmt.Sprintf("MatchPolicy(%d)", int(p))
	}
}

// ParseMatchPolicy parses "segment" or "full".
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "segment", "last-segment":
		return MatchLastSegment, nil
	case "full", "full-path":
		return MatchFullPath, nil
	default:
		return 0, fmt.Errorf("unknown match policy %q", s)
	}
}

func (p MatchPolicy) matches(name, fullPath, target, leaf string) bool {
	if p == MatchFullPath {
		return fullPath == target
	}
	return name == leaf
}

func (p MatchPolicy) descends(fullPath, target string) bool {
	if p == MatchFullPath {
		return strings.HasPrefix(target, fullPath+"/")
	}
	return true
}

// FindDirectory returns the directory addressed by target along with its
// full path. A directory whose full path equals target always wins; under
// MatchLastSegment the first same-named directory in depth-first order is
// used only when no such directory exists.
func FindDirectory(assets []Asset, target string, policy MatchPolicy) (*Directory, string, bool) {
	target = Clean(target)
	leaf := LastSegment(target)
	if d, p, ok := find(assets, "", target, leaf, MatchFullPath); ok || policy == MatchFullPath {
		return d, p, ok
	}
	return find(assets, "", target, leaf, policy)
}

func find(assets []Asset, prefix, target, leaf string, policy MatchPolicy) (*Directory, string, bool) {
	for _, a := range assets {
		d, ok := a.(*Directory)
		if !ok {
			continue
		}
		p := JoinPath(prefix, d.Name)
		if policy.matches(d.Name, p, target, leaf) {
			return d, p, true
		}
		if d.Loaded && policy.descends(p, target) {
			if found, fp, ok := find(d.Children, p, target, leaf, policy); ok {
				return found, fp, true
			}
		}
	}
	return nil, "", false
}

// UpdateDirectory applies fn to every directory addressed by target and
// returns the new sibling sequence. fn receives a copy of the directory and
// returns its replacement, or nil to leave it untouched.
//
// Only the spine from the root to each replaced directory is reallocated;
// every other subtree is returned by the same pointer. When nothing changes
// the input slice itself is returned along with false.
func UpdateDirectory(assets []Asset, target string, policy MatchPolicy, fn func(*Directory) *Directory) ([]Asset, bool) {
	target = Clean(target)
	return update(assets, "", target, LastSegment(target), policy, fn)
}

func update(assets []Asset, prefix, target, leaf string, policy MatchPolicy, fn func(*Directory) *Directory) ([]Asset, bool) {
	var out []Asset
	for i, a := range assets {
		d, ok := a.(*Directory)
		if !ok {
			continue
		}
		p := JoinPath(prefix, d.Name)

		var next *Directory
		switch {
		case policy.matches(d.Name, p, target, leaf):
			// Descent stops at a matched node.
			next = fn(d.clone())
		case d.Loaded && policy.descends(p, target):
			if children, changed := update(d.Children, p, target, leaf, policy, fn); changed {
				next = d.clone()
				next.Children = children
			}
		}
		if next == nil {
			continue
		}
		if out == nil {
			out = make([]Asset, len(assets))
			copy(out, assets)
		}
		out[i] = next
	}
	if out == nil {
		return assets, false
	}
	return out, true
}
