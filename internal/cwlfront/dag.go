package cwlfront

import (
	"sort"
	"strings"

	"github.com/me/dxcompiler/pkg/cwl"
	"github.com/me/dxcompiler/pkg/ir"
)

// stepOrder topologically sorts a workflow's steps so each step follows every
// step it reads from. Kahn's algorithm with a FIFO queue: the initial ready
// steps, and the successors each step makes ready, are queued in alphabetical
// order, so the order is deterministic.
//
// A source "assemble/contigs" in a step's inputs creates an edge
// assemble -> this step. Bare sources (workflow inputs) create no edges.
func stepOrder(wf *cwl.Workflow) ([]string, error) {
	stepIDs := make(map[string]bool, len(wf.Steps))
	for id := range wf.Steps {
		stepIDs[id] = true
	}

	forward := make(map[string][]string, len(wf.Steps))
	inDegree := make(map[string]int, len(wf.Steps))
	for id := range wf.Steps {
		inDegree[id] = 0
	}

	for stepID, step := range wf.Steps {
		seen := make(map[string]bool)
		for _, si := range step.In {
			source := si.Source
			if source == "" || !strings.Contains(source, "/") {
				continue
			}
			depID := strings.SplitN(source, "/", 2)[0]
			if depID == stepID {
				return nil, ir.Errorf(ir.UnsupportedConstruct, "step %q reads its own output", stepID)
			}
			if stepIDs[depID] && !seen[depID] {
				seen[depID] = true
				forward[depID] = append(forward[depID], stepID)
				inDegree[stepID]++
			}
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := forward[id]
		sort.Strings(next)
		var ready []string
		for _, succ := range next {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
		queue = append(queue, ready...)
	}

	if len(order) != len(wf.Steps) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, ir.Errorf(ir.UnsupportedConstruct, "workflow contains a cycle involving steps: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}
