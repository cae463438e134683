package chain

import (
	"context"
	"strings"
	"sync"

	"github.com/zadorian/submarine/internal/model"
)

// executeStep runs a single Step against value: a direct rule call for
// ActionTypeRule, or playbook fan-out for ActionTypePlaybook.
func (e *Executor) executeStep(ctx context.Context, step model.Step, value, jurisdiction string) (RuleResult, StepResult) {
	if step.ActionType == model.ActionTypePlaybook {
		return e.executePlaybookStep(ctx, step, value, jurisdiction)
	}

	if e.registry != nil {
		if _, ok := e.registry.GetRule(step.Action); !ok {
			return RuleResult{Status: "failed", Error: "unknown rule: " + step.Action},
				StepResult{Action: step.Action, Input: value, Status: "failed", Error: "unknown rule"}
		}
	}

	result, err := e.ruleExec.ExecuteRule(ctx, step.Action, value)
	sr := StepResult{Action: step.Action, Input: value}
	if err != nil {
		sr.Status = "failed"
		sr.Error = err.Error()
		return RuleResult{Status: "failed", Error: err.Error()}, sr
	}
	sr.Status = result.Status
	sr.Data = result.Data
	sr.Error = result.Error
	return result, sr
}

// executePlaybookStep resolves step.Action as a playbook id pattern
// (falling back to step.FallbackPattern) and runs every rule in the
// playbook concurrently, merging their Data maps. Grounded on spec.md
// §4.8's "each playbook expands to its child rules executed
// concurrently, result aggregated."
func (e *Executor) executePlaybookStep(ctx context.Context, step model.Step, value, jurisdiction string) (RuleResult, StepResult) {
	if e.registry == nil {
		return RuleResult{Status: "failed", Error: "no rule registry configured"},
			StepResult{Action: step.Action, Input: value, Status: "failed", Error: "no rule registry configured"}
	}

	id, ok := e.registry.ResolvePlaybookID(step.Action, jurisdiction)
	if !ok && step.FallbackPattern != "" {
		id, ok = e.registry.ResolvePlaybookID(step.FallbackPattern, jurisdiction)
	}
	if !ok {
		return RuleResult{Status: "failed", Error: "no playbook resolved for " + step.Action},
			StepResult{Action: step.Action, Input: value, Status: "failed", Error: "no playbook resolved"}
	}

	pb, ok := e.registry.GetPlaybook(id)
	if !ok {
		return RuleResult{Status: "failed", Error: "playbook not found: " + id},
			StepResult{Action: id, Input: value, Status: "failed", Error: "playbook not found"}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		merged   = make(map[string]interface{})
		anyOK    bool
		firstSrc string
	)
	for _, ruleID := range pb.Rules {
		ruleID := ruleID
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := e.ruleExec.ExecuteRule(ctx, ruleID, value)
			if err != nil || result.Status != "success" {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			anyOK = true
			if firstSrc == "" {
				firstSrc = result.Source
			}
			for k, v := range result.Data {
				merged[k] = v
			}
		}()
	}
	wg.Wait()

	if !anyOK {
		return RuleResult{Status: "failed", Error: "no playbook rule succeeded"},
			StepResult{Action: id, Input: value, Status: "failed", Error: "no playbook rule succeeded"}
	}
	return RuleResult{Status: "success", Data: merged, Source: firstSrc},
		StepResult{Action: id, Input: value, Status: "success", Data: merged}
}

// shareholderConditionAllows implements spec.md §4.8's "Condition
// tokens starting with shareholder_type are skipped at depth 0": at
// depth 0 any shareholder_type filter is ignored (every type admitted);
// beyond depth 0 a "shareholder_type=<type>" condition restricts to
// that type.
func shareholderConditionAllows(condition string, depth int, shType string) bool {
	if condition == "" || depth == 0 {
		return true
	}
	if !strings.HasPrefix(condition, "shareholder_type") {
		return true
	}
	parts := strings.SplitN(condition, "=", 2)
	if len(parts) != 2 {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(parts[1]), shType)
}
