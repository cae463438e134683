package chain

import (
	"context"

	"github.com/zadorian/submarine/internal/model"
)

// recursiveExpansion runs every step in the chain rule against each
// queued value, extracting new values from each successful result's
// output_fields and enqueuing them at depth+1 — grounded verbatim on
// the original chain_executor's _recursive_expand: every step fires for
// every batch item (not one step per depth level), and entities
// extracted at the deepest level are still recorded even though they
// are not expanded further (depth+1 == max_depth stops enqueueing, not
// recording).
func (e *Executor) recursiveExpansion(ctx context.Context, chainRule model.ChainRule, initialInput, jurisdiction string) (*Result, error) {
	cc := chainRule.ChainConfig
	maxDepth := cc.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	dedupFields := cc.DeduplicationFields

	var allResults []StepResult
	seen := make(map[string]struct{})
	processed := make(map[string]struct{})
	var graph model.EntityGraph

	type queued struct {
		value string
		depth int
	}
	queue := []queued{{initialInput, 0}}

	depth := 0
	for len(queue) > 0 && depth < maxDepth {
		e.emit("chain:hop", map[string]interface{}{
			"chain_id":  chainRule.ID,
			"depth":     depth,
			"queue_size": len(queue),
		})

		var batch []string
		var rest []queued
		for _, q := range queue {
			if q.depth != depth {
				rest = append(rest, q)
				continue
			}
			if _, dup := processed[q.value]; dup {
				continue
			}
			processed[q.value] = struct{}{}
			batch = append(batch, q.value)
		}
		queue = rest

		for _, value := range batch {
			for _, step := range cc.Steps {
				result, sr := e.executeStep(ctx, step, value, jurisdiction)
				allResults = append(allResults, sr)
				if result.Status != "success" {
					continue
				}

				for _, ev := range extractOutputFieldValues(result.Data, step.OutputFields, e.legend) {
					key := makeDedupKey(ev, dedupFields)
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					graph.AddNode(model.NewChainEntityNode(ev, "", depth+1, 1.0, nil))
					graph.AddEdge(value, ev, "recursive_expansion")
					if depth+1 < maxDepth {
						queue = append(queue, queued{ev, depth + 1})
					}
				}
			}
		}
		depth++
	}

	return &Result{
		Status:        "success",
		AllResults:    allResults,
		AllEntities:   graph.Nodes,
		EntityGraph:   graph,
		StoppedReason: stopReasonFor(len(queue), depth, maxDepth),
	}, nil
}

// extractOutputFieldValues resolves a Step's int output_fields to field
// names via the Legend, then pulls those fields' string (or
// string-list) values out of a rule result's data.
func extractOutputFieldValues(data map[string]interface{}, fields []int, legend interface {
	Resolve(int) string
}) []string {
	var out []string
	for _, code := range fields {
		name := legend.Resolve(code)
		v, ok := data[name]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case []string:
			out = append(out, t...)
		case []interface{}:
			for _, item := range t {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func stopReasonFor(queueLen, depthReached, maxDepth int) string {
	if queueLen == 0 {
		return "queue_exhausted"
	}
	if depthReached >= maxDepth {
		return "max_depth_reached"
	}
	return ""
}
