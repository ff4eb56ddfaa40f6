package filetree

// Node is the JSON form of an asset.
type Node struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Expanded bool   `json:"expanded,omitempty"`
	Loaded   bool   `json:"loaded,omitempty"`
	Children []Node `json:"children,omitempty"`
}

const (
	TypeFile      = "file"
	TypeDirectory = "directory"
)

// Export converts a snapshot to its JSON form.
func Export(assets []Asset) []Node {
	nodes := make([]Node, 0, len(assets))
	for _, a := range assets {
		switch v := a.(type) {
		case *File:
			nodes = append(nodes, Node{Name: v.Name, Type: TypeFile})
		case *Directory:
			n := Node{Name: v.Name, Type: TypeDirectory, Expanded: v.Expanded, Loaded: v.Loaded}
			if v.Loaded {
				n.Children = Export(v.Children)
			}
			nodes = append(nodes, n)
		}
	}
	return nodes
}
