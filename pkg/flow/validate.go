// Package flow provides validation and loading of flow definitions.
package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowplane/flowplane/pkg/models"
)

// GraphError describes a malformed flow graph. It is raised at validation
// time, never during execution.
type GraphError struct {
	FlowID   string
	Problems []string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("invalid flow graph %s: %s", e.FlowID, strings.Join(e.Problems, "; "))
}

// Validate checks a flow's graph for structural problems: duplicate node ids,
// edges referencing unknown nodes, duplicate edges between the same ordered
// pair, and nodes that can never become eligible because they sit on or behind
// a cycle. A flow with zero nodes is valid.
func Validate(flow *models.Flow) error {
	var problems []string

	nodeIDs := make(map[string]bool, len(flow.Nodes))

	for _, node := range flow.Nodes {
		if nodeIDs[node.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", node.ID))

			continue
		}

		nodeIDs[node.ID] = true
	}

	seenEdges := make(map[string]bool, len(flow.Edges))

	for _, edge := range flow.Edges {
		if !nodeIDs[edge.Source] {
			problems = append(problems, fmt.Sprintf("edge source %q does not exist", edge.Source))
		}

		if !nodeIDs[edge.Target] {
			problems = append(problems, fmt.Sprintf("edge target %q does not exist", edge.Target))
		}

		pair := edge.Source + " -> " + edge.Target
		if seenEdges[pair] {
			problems = append(problems, fmt.Sprintf("duplicate edge %s", pair))
		}

		seenEdges[pair] = true
	}

	// Only check reachability on an otherwise well-formed graph; dangling
	// edge endpoints would produce misleading unreachable reports.
	if len(problems) == 0 {
		if unreachable := unreachableNodes(flow); len(unreachable) > 0 {
			problems = append(problems,
				fmt.Sprintf("unreachable nodes: %s", strings.Join(unreachable, ", ")))
		}
	}

	if len(problems) > 0 {
		return &GraphError{FlowID: flow.ID, Problems: problems}
	}

	return nil
}

// unreachableNodes runs Kahn's algorithm and returns the ids of nodes left
// unprocessed. The executor considers a node ready once all its inbound edge
// sources are terminal, so any node trapped in or behind a cycle would hang
// forever; reporting it here keeps that failure out of the run loop.
func unreachableNodes(flow *models.Flow) []string {
	inDegree := make(map[string]int, len(flow.Nodes))
	for _, node := range flow.Nodes {
		inDegree[node.ID] = 0
	}

	outbound := make(map[string][]string, len(flow.Nodes))

	for _, edge := range flow.Edges {
		inDegree[edge.Target]++
		outbound[edge.Source] = append(outbound[edge.Source], edge.Target)
	}

	var queue []string

	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed++

		for _, target := range outbound[current] {
			inDegree[target]--
			if inDegree[target] == 0 {
				queue = append(queue, target)
			}
		}
	}

	if processed == len(flow.Nodes) {
		return nil
	}

	var unreachable []string

	for id, degree := range inDegree {
		if degree > 0 {
			unreachable = append(unreachable, id)
		}
	}

	sort.Strings(unreachable)

	return unreachable
}
