package chain

import (
	"context"
	"strings"

	"github.com/zadorian/submarine/internal/model"
)

// MaxMediaItems caps media_aggregation's result count, per spec.md
// §4.8's "aggregation stops once 100 distinct items are collected."
const MaxMediaItems = 100

// playbookFanout is the shared dispatch target for playbook_cascade,
// multi_jurisdiction_sweep, domain_to_corporate_pivot, and
// compliance_stack: every step is a playbook (or, for
// multi_jurisdiction_sweep, the same playbook run once per
// jurisdiction token found in the step's condition) run against
// initialInput, with discovered entities chained into the next step's
// input when the step's output_fields name a field present in the
// previous step's data.
func (e *Executor) playbookFanout(ctx context.Context, chainRule model.ChainRule, initialInput, jurisdiction string) (*Result, error) {
	cc := chainRule.ChainConfig
	var allResults []StepResult
	var graph model.EntityGraph
	seen := map[string]struct{}{}

	current := initialInput
	for _, step := range cc.Steps {
		jurisdictions := jurisdictionsFor(chainRule.ChainConfig.Type, step, jurisdiction)

		for _, jur := range jurisdictions {
			result, sr := e.executeStep(ctx, step, current, jur)
			allResults = append(allResults, sr)
			if result.Status != "success" {
				continue
			}

			for _, ev := range extractOutputFieldValues(result.Data, step.OutputFields, e.legend) {
				key := makeDedupKey(ev, cc.DeduplicationFields)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				graph.AddNode(model.NewChainEntityNode(ev, "", 1, 1.0, nil))
				graph.AddEdge(current, ev, string(cc.Type))
				current = ev
			}
		}
	}

	return &Result{
		Status:      "success",
		AllResults:  allResults,
		AllEntities: graph.Nodes,
		EntityGraph: graph,
	}, nil
}

// jurisdictionsFor returns the jurisdiction tokens a step should run
// under. multi_jurisdiction_sweep treats a comma-separated
// step.Condition as the jurisdiction list ("sweep every jurisdiction
// named"); every other playbook-backed chain type runs once under the
// caller's jurisdiction.
func jurisdictionsFor(chainType model.ChainType, step model.Step, jurisdiction string) []string {
	if chainType != model.ChainMultiJurisdictionSweep || step.Condition == "" {
		return []string{jurisdiction}
	}
	var out []string
	for _, tok := range strings.Split(step.Condition, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	if len(out) == 0 {
		return []string{jurisdiction}
	}
	return out
}

// mediaAggregation runs every step against initialInput, collecting
// media items from each result and deduping first by URL, then by
// title when a URL is absent, stopping once MaxMediaItems are
// collected.
func (e *Executor) mediaAggregation(ctx context.Context, chainRule model.ChainRule, initialInput, jurisdiction string) (*Result, error) {
	cc := chainRule.ChainConfig
	var allResults []StepResult
	var graph model.EntityGraph
	seenURLs := map[string]struct{}{}
	seenTitles := map[string]struct{}{}
	var items []model.MediaItem

	for _, step := range cc.Steps {
		if len(items) >= MaxMediaItems {
			break
		}
		result, sr := e.executeStep(ctx, step, initialInput, jurisdiction)
		allResults = append(allResults, sr)
		if result.Status != "success" {
			continue
		}

		for _, item := range parseMediaItems(result.Data) {
			if len(items) >= MaxMediaItems {
				break
			}
			dedupKey := item.URL
			seenSet := seenURLs
			if dedupKey == "" {
				dedupKey = item.Title
				seenSet = seenTitles
			}
			if dedupKey == "" {
				continue
			}
			if _, dup := seenSet[dedupKey]; dup {
				continue
			}
			seenSet[dedupKey] = struct{}{}
			items = append(items, item)

			label := item.Title
			if label == "" {
				label = item.URL
			}
			graph.AddNode(model.NewChainEntityNode(label, "media_item", 1, 1.0, map[string]interface{}{
				"url": item.URL, "source": item.Source, "published_at": item.PublishedAt,
			}))
			graph.AddEdge(initialInput, label, "media_aggregation")
		}
	}

	return &Result{
		Status:      "success",
		AllResults:  allResults,
		AllEntities: graph.Nodes,
		EntityGraph: graph,
		Metrics:     map[string]interface{}{"total_items": len(items)},
	}, nil
}
