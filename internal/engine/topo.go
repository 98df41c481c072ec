package engine

import (
	"sort"

	"github.com/hlop3z/cometdb/internal/qerr"
)

// DependencyNode is anything that can participate in a topological sort.
type DependencyNode interface {
	ID() string
	Dependencies() []string
}

// TopoSort orders nodes so dependencies come before dependents, using Kahn's
// algorithm with a sorted ready queue for deterministic output. Dependencies
// outside the node set are ignored. A cycle surfaces as E1004 listing the
// stuck nodes.
func TopoSort[T DependencyNode](nodes []T) ([]T, error) {
	if len(nodes) <= 1 {
		return nodes, nil
	}

	nodeMap := make(map[string]T, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		nodeMap[n.ID()] = n
	}
	for _, n := range nodes {
		count := 0
		for _, dep := range n.Dependencies() {
			if _, ok := nodeMap[dep]; ok && dep != n.ID() {
				count++
			}
		}
		inDegree[n.ID()] = count
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var result []T
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, nodeMap[id])

		for otherID, other := range nodeMap {
			for _, dep := range other.Dependencies() {
				if dep == id {
					inDegree[otherID]--
					if inDegree[otherID] == 0 {
						queue = append(queue, otherID)
						sort.Strings(queue)
					}
					break
				}
			}
		}
	}

	if len(result) != len(nodes) {
		var stuck []string
		for id, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, qerr.Newf(qerr.ErrSchemaCircularRef,
			"circular dependency among tables: %v", stuck)
	}
	return result, nil
}
