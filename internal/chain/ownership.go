package chain

import (
	"context"
	"strings"

	"github.com/zadorian/submarine/internal/model"
)

// ownershipTree implements both cascading_ownership (default threshold
// 25%) and hierarchical_expansion (default threshold 50%): a tree
// rooted at initialInput, admitting a shareholder iff
// ownership_pct >= threshold, recursing into corporate shareholders
// while depth permits. Grounded on spec.md §4.8's shared description
// of the two strategies, which differ only in default threshold.
func (e *Executor) ownershipTree(ctx context.Context, chainRule model.ChainRule, initialInput string, defaultThresholdPct float64) (*Result, error) {
	cc := chainRule.ChainConfig
	maxDepth := cc.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	threshold := cc.OwnershipThresholdPct
	if threshold <= 0 {
		threshold = defaultThresholdPct
	}

	var step model.Step
	if len(cc.Steps) > 0 {
		step = cc.Steps[0]
	}

	var allResults []StepResult
	var graph model.EntityGraph
	seen := map[string]struct{}{}

	visitedCompanies := map[string]struct{}{}

	var walk func(company string, depth int)
	walk = func(company string, depth int) {
		if depth >= maxDepth {
			return
		}
		// visitedCompanies guards against re-expanding the same company
		// (e.g. a circular shareholding); it is a distinct namespace
		// from seen's shareholder-admission keys, which are checked per
		// parent and would otherwise already mark this company seen
		// before its own walk ever runs.
		lowerCompany := strings.ToLower(company)
		if _, dup := visitedCompanies[lowerCompany]; dup {
			return
		}
		visitedCompanies[lowerCompany] = struct{}{}

		result, sr := e.executeStep(ctx, step, company, "")
		allResults = append(allResults, sr)
		if result.Status != "success" {
			return
		}

		e.emit("chain:hop", map[string]interface{}{"chain_id": chainRule.ID, "depth": depth, "company": company})

		for _, sh := range parseShareholders(result.Data) {
			if !shareholderConditionAllows(step.Condition, depth, sh.Type) {
				continue
			}
			if sh.OwnershipPct < threshold {
				continue
			}
			shKey := entityKey(sh.Type, sh.Name)
			if _, dup := seen[shKey]; dup {
				continue
			}
			seen[shKey] = struct{}{}

			graph.AddNode(model.NewChainEntityNode(sh.Name, sh.Type, depth+1, sh.OwnershipPct/100.0,
				map[string]interface{}{"ownership_pct": sh.OwnershipPct}))
			graph.AddEdge(company, sh.Name, "shareholder")

			if sh.Type == "company" {
				walk(sh.Name, depth+1)
			}
		}
	}

	walk(initialInput, 0)

	return &Result{
		Status:      "success",
		AllResults:  allResults,
		AllEntities: graph.Nodes,
		EntityGraph: graph,
	}, nil
}

// portfolioExpansion walks holdings from initialInput, admitting a
// holding iff ownership_pct >= threshold (default 5%) and recursing
// into corporate holdings only when the step's condition contains
// "follow_corporate".
func (e *Executor) portfolioExpansion(ctx context.Context, chainRule model.ChainRule, initialInput string) (*Result, error) {
	cc := chainRule.ChainConfig
	maxDepth := cc.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	threshold := cc.OwnershipThresholdPct
	if threshold <= 0 {
		threshold = 5.0
	}

	var step model.Step
	if len(cc.Steps) > 0 {
		step = cc.Steps[0]
	}
	followCorporate := strings.Contains(step.Condition, "follow_corporate")

	var allResults []StepResult
	var graph model.EntityGraph
	seen := map[string]struct{}{}

	var walk func(value string, depth int)
	walk = func(value string, depth int) {
		if depth >= maxDepth {
			return
		}
		key := entityKey("holding_root", value)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		result, sr := e.executeStep(ctx, step, value, "")
		allResults = append(allResults, sr)
		if result.Status != "success" {
			return
		}

		for _, h := range parseHoldings(result.Data) {
			if h.OwnershipPct < threshold {
				continue
			}
			hKey := entityKey(h.Type, h.Name)
			if _, dup := seen[hKey]; dup {
				continue
			}
			seen[hKey] = struct{}{}

			graph.AddNode(model.NewChainEntityNode(h.Name, h.Type, depth+1, h.OwnershipPct/100.0,
				map[string]interface{}{"ownership_pct": h.OwnershipPct}))
			graph.AddEdge(value, h.Name, "holding")

			if h.Type == "company" && followCorporate {
				walk(h.Name, depth+1)
			}
		}
	}

	walk(initialInput, 0)

	return &Result{
		Status:      "success",
		AllResults:  allResults,
		AllEntities: graph.Nodes,
		EntityGraph: graph,
	}, nil
}

