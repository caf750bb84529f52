package quiver

import (
	"fmt"
	"reflect"
	"sort"
)

// GraphKey is one (key, subscribers) entry of a graph node.
type GraphKey struct {
	Key     string   `json:"key"`
	Effects []uint64 `json:"effects"`
}

// GraphNode is one tracked target and its dependency entries.
type GraphNode struct {
	Target string     `json:"target"`
	Kind   string     `json:"kind"`
	Keys   []GraphKey `json:"keys"`
}

// Graph returns a snapshot of the dependency store: every tracked target,
// its keys, and the IDs of the effects subscribed to each key. Output is
// sorted so snapshots diff cleanly.
//
// Like a tracked read, Graph must run on the runtime's home goroutine.
// The inspector stores the result and serves it to other goroutines.
func (rt *Runtime) Graph() []GraphNode {
	nodes := make([]GraphNode, 0, len(rt.deps))
	for target, keyDeps := range rt.deps {
		node := GraphNode{
			Target: TargetLabel(target),
			Kind:   targetKind(target),
			Keys:   make([]GraphKey, 0, len(keyDeps)),
		}
		for key, d := range keyDeps {
			ids := make([]uint64, 0, len(d.effects))
			for e := range d.effects {
				ids = append(ids, e.id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			node.Keys = append(node.Keys, GraphKey{
				Key:     fmt.Sprintf("%v", key),
				Effects: ids,
			})
		}
		sort.Slice(node.Keys, func(i, j int) bool {
			return node.Keys[i].Key < node.Keys[j].Key
		})
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Target < nodes[j].Target
	})
	return nodes
}

// TargetLabel returns a printable identity for a tracked target, stable
// for the target's lifetime. Wrapper targets and cells are labeled by
// kind and address; custom comparable targets by kind and value.
func TargetLabel(target any) string {
	kind := targetKind(target)
	if v := reflect.ValueOf(target); v.Kind() == reflect.Ptr {
		return fmt.Sprintf("%s@0x%x", kind, v.Pointer())
	}
	return fmt.Sprintf("%s:%v", kind, target)
}

func targetKind(target any) string {
	switch target.(type) {
	case *mapTarget:
		return "map"
	case *listTarget:
		return "list"
	case Cell:
		return "cell"
	default:
		return "custom"
	}
}
