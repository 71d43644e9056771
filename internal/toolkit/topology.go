package toolkit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TopologyResult lists services reachable from Service in one direction.
// Error is set instead of the list when the service is unknown.
type TopologyResult struct {
	Service   string
	Direction string
	Depth     int
	Related   []string
	Error     string
}

// NotFound reports whether the expansion failed because the service is unknown.
func (r TopologyResult) NotFound() bool { return r.Error != "" }

// MarshalJSON keys the related list by adjacency kind, "dependencies" for
// upstream and "dependents" for downstream.
func (r TopologyResult) MarshalJSON() ([]byte, error) {
	if r.NotFound() {
		return json.Marshal(map[string]string{"error": r.Error})
	}
	return json.Marshal(map[string]any{
		"service":                 r.Service,
		"direction":               r.Direction,
		"depth":                   r.Depth,
		adjacencyKey(r.Direction): r.Related,
	})
}

func adjacencyKey(direction string) string {
	if direction == Downstream {
		return "dependents"
	}
	return "dependencies"
}

// ExpandTopology walks the dependency graph breadth-first up to depth hops.
// Upstream follows dependencies, downstream follows dependents. Each service
// is expanded at most once, so cycles terminate; the origin is never listed.
// Results are in discovery order.
func (t *Toolkit) ExpandTopology(service, direction string, depth int) (TopologyResult, error) {
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != Upstream && direction != Downstream {
		return TopologyResult{}, fmt.Errorf("%w: direction %q", ErrInvalidEnum, direction)
	}
	if depth < 1 {
		return TopologyResult{}, fmt.Errorf("%w: depth must be at least 1, got %d", ErrInvalidArgument, depth)
	}

	if _, ok := t.store.Service(service); !ok {
		return TopologyResult{Service: service, Direction: direction, Depth: depth, Error: fmt.Sprintf("Service %s not found", service)}, nil
	}

	visited := map[string]struct{}{service: {}}
	related := []string{}
	frontier := []string{service}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, current := range frontier {
			node, ok := t.store.Service(current)
			if !ok {
				continue
			}
			neighbours := node.Dependencies
			if direction == Downstream {
				neighbours = node.Dependents
			}
			for _, neighbour := range neighbours {
				if _, seen := visited[neighbour]; seen {
					continue
				}
				visited[neighbour] = struct{}{}
				related = append(related, neighbour)
				next = append(next, neighbour)
			}
		}
		frontier = next
	}

	return TopologyResult{Service: service, Direction: direction, Depth: depth, Related: related}, nil
}
