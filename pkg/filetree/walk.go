package filetree

import "sort"

// Row is one visible line of a rendered tree.
type Row struct {
	Path  string
	Depth int
	Asset Asset
}

// Walk visits assets depth-first in stored order. Returning false from fn
// skips the children of a directory.
func Walk(assets []Asset, fn func(path string, depth int, a Asset) bool) {
	walk(assets, "", 0, fn)
}

func walk(assets []Asset, prefix string, depth int, fn func(string, int, Asset) bool) {
	for _, a := range assets {
		p := JoinPath(prefix, Name(a))
		if !fn(p, depth, a) {
			continue
		}
		if d, ok := a.(*Directory); ok && d.Loaded {
			walk(d.Children, p, depth+1, fn)
		}
	}
}

// Visible returns the rows a rendering surface shows: children of expanded,
// loaded directories only, each level ordered directories first and then by
// name. The stored order is not changed.
func Visible(assets []Asset) []Row {
	var rows []Row
	visible(assets, "", 0, &rows)
	return rows
}

func visible(assets []Asset, prefix string, depth int, rows *[]Row) {
	for _, a := range displayOrder(assets) {
		p := JoinPath(prefix, Name(a))
		*rows = append(*rows, Row{Path: p, Depth: depth, Asset: a})
		if d, ok := a.(*Directory); ok && d.Loaded && d.Expanded {
			visible(d.Children, p, depth+1, rows)
		}
	}
}

func displayOrder(assets []Asset) []Asset {
	sorted := make([]Asset, len(assets))
	copy(sorted, assets)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := IsDir(sorted[i]), IsDir(sorted[j])
		if di != dj {
			return di
		}
		return Name(sorted[i]) < Name(sorted[j])
	})
	return sorted
}

// CountNodes counts all loaded nodes.
func CountNodes(assets []Asset) int {
	n := 0
	Walk(assets, func(string, int, Asset) bool {
		n++
		return true
	})
	return n
}
