// Package chain implements the recursive strategy dispatcher that
// walks entities outward from a seed value via the Rule Registry and
// an injected Rule Executor: BFS expansion, ownership trees, officer
// networks, playbook fan-out, and the OSINT cascade/breach-network/
// person-web pipelines. Grounded on the rule-dispatch shape of
// semantic/actionregistry.go and the bounded-concurrency idiom of
// worker/pool.go and graph/dag.go, adapted from the original Python
// chain_executor's per-strategy methods.
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zadorian/submarine/internal/eventbus"
	"github.com/zadorian/submarine/internal/model"
	"github.com/zadorian/submarine/internal/rules"
)

// RuleResult is the outcome of a single rule invocation. Status is
// "success" or "failed"; Data carries whatever fields the underlying
// OSINT/corporate/WHOIS/breach source returned, keyed the way the
// entity-pattern extractor and the per-strategy record parsers expect
// (e.g. "shareholders", "officers", "email", "phone"). Source names the
// provenance key used by the relevance formula's source-weight lookup
// (e.g. "dehashed", "whois", "companies_house").
type RuleResult struct {
	Status string
	Data   map[string]interface{}
	Source string
	Error  string
}

func (r RuleResult) ok() bool { return r.Status == "success" }

// RuleExecutor runs a single named rule against an input value. The
// Chain Executor never calls external services itself — it accepts
// this interface so callers can wire in the real Rule Executor (HTTP
// calls to registries, breach databases, OSINT providers) or a stub for
// testing, matching the teacher's ActionRepository/Queue
// accept-an-interface convention.
type RuleExecutor interface {
	ExecuteRule(ctx context.Context, ruleID, input string) (RuleResult, error)
}

// Store is the optional entity-persistence contract. A nil Store is
// valid: Executor skips persistence entirely. Only the osint_cascade
// strategy persists its discovered nodes. Persistence failures
// never abort discovery — they emit a "cymonides:error" event instead,
// per spec.md's failure semantics.
type Store interface {
	PersistEntity(ctx context.Context, node model.ChainEntityNode) error
}

// StepResult records one rule call's outcome for the run-level audit
// trail (all_results), independent of whether its output was admitted
// as a discovered entity.
type StepResult struct {
	Action string
	Input  string
	Status string
	Error  string
	Data   map[string]interface{}
}

// Seed is the typed starting point of a chain run: a value and its
// entity type (email, phone, domain, company, person, ...). Strategies
// that don't care about type (ownership trees, portfolio walks) just
// read Seed.Value.
type Seed struct {
	Value string
	Type  string
}

// Result is the full outcome of one execute_chain call.
type Result struct {
	Status         string
	Error          string
	AllResults     []StepResult
	AllEntities    []model.ChainEntityNode
	EntityGraph    model.EntityGraph
	UniqueEntities int
	TotalResults   int
	StoppedReason  string
	Metrics        map[string]interface{}
	// Ages holds the ?age operator's result for each entity whose Data
	// carried a recognizable birth/incorporation/registration date,
	// keyed by entity value.
	Ages map[string]AgeResult
}

// Executor dispatches execute_chain calls to the strategy named by the
// chain rule's ChainConfig.Type.
type Executor struct {
	registry *rules.Registry
	legend   *rules.Legend
	ruleExec RuleExecutor
	store    Store
	bus      *eventbus.Bus
	log      *logrus.Entry
}

// New builds an Executor. store may be nil (persistence disabled); bus
// may be nil (no event stream).
func New(registry *rules.Registry, legend *rules.Legend, ruleExec RuleExecutor, store Store, bus *eventbus.Bus, log *logrus.Entry) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Executor{registry: registry, legend: legend, ruleExec: ruleExec, store: store, bus: bus, log: log}
}

// ExecuteChain reads chainRule.ChainConfig.Type and dispatches to the
// matching strategy. jurisdiction is used only by strategies that
// resolve playbook id patterns ("{jurisdiction}" substitution) or apply
// jurisdiction-scoped rule sets.
func (e *Executor) ExecuteChain(ctx context.Context, chainRule model.ChainRule, seed Seed, jurisdiction string) (*Result, error) {
	if strings.TrimSpace(seed.Value) == "" {
		return &Result{Status: "failed", Error: "empty seed value"}, nil
	}

	runID := uuid.New().String()

	e.emit("chain:start", map[string]interface{}{
		"chain_id": chainRule.ID,
		"run_id":   runID,
		"type":     string(chainRule.ChainConfig.Type),
		"input":    seed.Value,
	})

	var (
		res *Result
		err error
	)

	switch chainRule.ChainConfig.Type {
	case model.ChainRecursiveExpansion:
		res, err = e.recursiveExpansion(ctx, chainRule, seed.Value, jurisdiction)
	case model.ChainCascadingOwnership:
		res, err = e.ownershipTree(ctx, chainRule, seed.Value, 25.0)
	case model.ChainHierarchicalExpansion:
		res, err = e.ownershipTree(ctx, chainRule, seed.Value, 50.0)
	case model.ChainPortfolioExpansion:
		res, err = e.portfolioExpansion(ctx, chainRule, seed.Value)
	case model.ChainClusteringNetwork:
		res, err = e.clusteringNetwork(ctx, chainRule, seed.Value)
	case model.ChainNetworkExpansion:
		res, err = e.networkExpansion(ctx, chainRule, seed.Value)
	case model.ChainEntityNetworkExtraction:
		res, err = e.entityNetworkExtraction(ctx, chainRule, seed.Value)
	case model.ChainPlaybookCascade, model.ChainMultiJurisdictionSweep, model.ChainDomainToCorporatePivot, model.ChainComplianceStack:
		res, err = e.playbookFanout(ctx, chainRule, seed.Value, jurisdiction)
	case model.ChainMediaAggregation:
		res, err = e.mediaAggregation(ctx, chainRule, seed.Value, jurisdiction)
	case model.ChainOSINTCascade:
		res, err = e.osintCascade(ctx, chainRule, seed)
	case model.ChainOSINTBreachNetwork:
		res, err = e.osintBreachNetwork(ctx, chainRule, seed)
	case model.ChainOSINTPersonWeb:
		res, err = e.osintPersonWeb(ctx, chainRule, seed)
	default:
		return &Result{Status: "failed", Error: fmt.Sprintf("unknown chain type: %s", chainRule.ChainConfig.Type)}, nil
	}

	if err != nil {
		e.bus.Warn("chain", fmt.Sprintf("chain %s failed: %v", chainRule.ID, err))
		return res, err
	}

	res.EntityGraph.Root = seed.Value
	if res.UniqueEntities == 0 {
		res.UniqueEntities = len(res.AllEntities)
	}
	res.TotalResults = len(res.AllResults)
	if res.Status == "" {
		res.Status = "success"
	}
	if res.Metrics == nil {
		res.Metrics = map[string]interface{}{}
	}
	res.Metrics["run_id"] = runID

	e.applyAges(res)
	e.detectBinaryStars(res.AllEntities)

	e.emit("chain:complete", map[string]interface{}{
		"chain_id":        chainRule.ID,
		"run_id":          runID,
		"unique_entities": res.UniqueEntities,
		"total_results":   res.TotalResults,
		"stopped_reason":  res.StoppedReason,
	})

	return res, nil
}

func (e *Executor) emit(eventType string, data map[string]interface{}) {
	e.bus.Emit(eventType, data)
}

// executeRuleFallback tries each rule id in order against input,
// returning the first success. If none succeed it returns the last
// attempted failure (or a synthetic "no working rule available" failure if the
// registry has none of the candidate ids). Mirrors the source system's
// per-entity-type fallback chains (spec.md §4.8 "Per-hop protocol").
func (e *Executor) executeRuleFallback(ctx context.Context, ruleIDs []string, input string) (RuleResult, StepResult) {
	var last RuleResult
	for _, id := range ruleIDs {
		if e.registry != nil {
			if _, ok := e.registry.GetRule(id); !ok {
				continue
			}
		}
		result, err := e.ruleExec.ExecuteRule(ctx, id, input)
		step := StepResult{Action: id, Input: input, Status: result.Status, Data: result.Data}
		if err != nil {
			step.Status = "failed"
			step.Error = err.Error()
			last = RuleResult{Status: "failed", Error: err.Error()}
			continue
		}
		if result.ok() {
			return result, step
		}
		last = result
	}
	if last.Status == "" {
		last = RuleResult{Status: "failed", Error: "no working rule available"}
	}
	return last, StepResult{Action: strings.Join(ruleIDs, ","), Input: input, Status: "failed", Error: last.Error}
}
