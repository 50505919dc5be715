package timeseries

import (
	"gopkg.in/yaml.v2"

	apperrors "repdays/internal/errors"
)

// Node is one element of the time-series grouping tree: either a group with
// children or a leaf naming a series file. The tree mirrors the nested
// mapping in the configuration; ordered mappings keep the walk deterministic
// for a fixed input structure.
type Node struct {
	Name     string
	Children []Node
	IsLeaf   bool
}

// ParseGrouping converts the ordered configuration mapping into a grouping
// tree rooted at an unnamed group. A mapping value is a sub-group; a sequence
// value contributes one leaf per string entry. Other value types are ignored,
// as are non-string sequence entries.
func ParseGrouping(grouping yaml.MapSlice) (Node, error) {
	const op = "timeseries.ParseGrouping"

	root := Node{}
	for _, item := range grouping {
		name, ok := item.Key.(string)
		if !ok {
			return Node{}, apperrors.Newf(apperrors.CodeInvalidConfig, op,
				"group key %v is not a string", item.Key)
		}
		child, err := parseNode(name, item.Value)
		if err != nil {
			return Node{}, err
		}
		root.Children = append(root.Children, child)
	}
	return root, nil
}

func parseNode(name string, value interface{}) (Node, error) {
	node := Node{Name: name}

	switch v := value.(type) {
	case yaml.MapSlice:
		for _, item := range v {
			childName, ok := item.Key.(string)
			if !ok {
				return Node{}, apperrors.Newf(apperrors.CodeInvalidConfig,
					"timeseries.parseNode", "group key %v under %q is not a string", item.Key, name)
			}
			child, err := parseNode(childName, item.Value)
			if err != nil {
				return Node{}, err
			}
			node.Children = append(node.Children, child)
		}
	case []interface{}:
		for _, item := range v {
			if id, ok := item.(string); ok {
				node.Children = append(node.Children, Node{Name: id, IsLeaf: true})
			}
		}
	}
	return node, nil
}

// Walk visits every leaf in tree order, passing the group path (excluding the
// leaf) and the leaf name. Traversal stops at the first error.
func (n Node) Walk(fn func(path []string, leaf string) error) error {
	return n.walk(nil, fn)
}

func (n Node) walk(path []string, fn func(path []string, leaf string) error) error {
	for _, child := range n.Children {
		if child.IsLeaf {
			if err := fn(path, child.Name); err != nil {
				return err
			}
			continue
		}
		childPath := append(append([]string{}, path...), child.Name)
		if err := child.walk(childPath, fn); err != nil {
			return err
		}
	}
	return nil
}
