// Package filetree maintains a lazily loaded, path-addressed view of a remote
// deployment's file bundle.
//
// Directory children are fetched the first time a directory is opened and
// are toggled without refetching afterwards. Snapshots are immutable: every
// update rebuilds only the spine from the root to the changed directory and
// shares all other subtrees by pointer.
package filetree

// Root selects which bundle of a deployment a tree mirrors.
type Root string

const (
	RootSource Root = "src"
	RootOutput Root = "out"
)

// Asset is either a *File or a *Directory.
type Asset interface {
	assetName() string
}

// File is a terminal node.
type File struct {
	Name string
}

// Directory is a node whose children are loaded on demand.
// Children is nil until the first successful load; Loaded implies a non-nil
// (possibly empty) Children slice. Expanded is a display toggle only.
type Directory struct {
	Name     string
	Children []Asset
	Expanded bool
	Loaded   bool
}

// NewFile returns a file node.
func NewFile(name string) *File {
	return &File{Name: name}
}

// NewDirectory returns a collapsed, unloaded directory node.
func NewDirectory(name string) *Directory {
	return &Directory{Name: name}
}

func (f *File) assetName() string      { return f.Name }
func (d *Directory) assetName() string { return d.Name }

func (d *Directory) clone() *Directory {
	c := *d
	return &c
}

// Name returns the name of any asset.
func Name(a Asset) string {
	if a == nil {
		return ""
	}
	return a.assetName()
}

// IsDir reports whether a is a directory.
func IsDir(a Asset) bool {
	_, ok := a.(*Directory)
	return ok
}
