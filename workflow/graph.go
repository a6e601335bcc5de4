package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Graph is an API-format workflow: a mapping of node id to node. It is the
// exact shape the engine's queue endpoint accepts, so it marshals back to the
// wire format without translation.
type Graph map[string]*Node

// Node is one operation in a workflow graph. Inputs hold either literal
// scalars or edges in the form [node-id, output-index]; the engine
// topologically sorts and executes the graph server-side.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// NewGraphFromJSONReader parses an API-format workflow from r.
func NewGraphFromJSONReader(r io.Reader) (Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing workflow graph: %w", err)
	}
	return g, nil
}

// NewGraphFromJSONFile loads an API-format workflow template from a file.
func NewGraphFromJSONFile(path string) (Graph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return NewGraphFromJSONReader(file)
}

// Clone returns a deep copy of the graph. Templates are shared between
// concurrent jobs, so every mutation path must operate on a clone.
func (g Graph) Clone() Graph {
	clone := make(Graph, len(g))
	for id, node := range g {
		clone[id] = &Node{
			ClassType: node.ClassType,
			Inputs:    cloneValue(node.Inputs).(map[string]any),
		}
	}
	return clone
}

// HasInput reports whether the node carries an input with the given name.
func (n *Node) HasInput(name string) bool {
	_, ok := n.Inputs[name]
	return ok
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, e := range val {
			s[i] = cloneValue(e)
		}
		return s
	default:
		// JSON scalars are immutable
		return val
	}
}
