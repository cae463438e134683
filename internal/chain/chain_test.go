package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zadorian/submarine/internal/model"
	"github.com/zadorian/submarine/internal/rules"
)

type fixture struct {
	result RuleResult
	err    error
}

type fakeRuleExecutor struct {
	fixtures map[string]fixture
	calls    []string
}

func newFakeRuleExecutor() *fakeRuleExecutor {
	return &fakeRuleExecutor{fixtures: make(map[string]fixture)}
}

func (f *fakeRuleExecutor) on(ruleID, input string, result RuleResult) {
	f.fixtures[ruleID+"|"+input] = fixture{result: result}
}

func (f *fakeRuleExecutor) ExecuteRule(_ context.Context, ruleID, input string) (RuleResult, error) {
	f.calls = append(f.calls, ruleID+"|"+input)
	fx, ok := f.fixtures[ruleID+"|"+input]
	if !ok {
		return RuleResult{Status: "failed", Error: "no fixture for " + ruleID}, nil
	}
	return fx.result, fx.err
}

func nodeValues(nodes []model.ChainEntityNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Value
	}
	return out
}

func TestExecuteChainRejectsEmptySeed(t *testing.T) {
	e := New(nil, rules.NewLegend(nil), newFakeRuleExecutor(), nil, nil, nil)
	res, err := e.ExecuteChain(context.Background(), model.ChainRule{}, Seed{Value: "  "}, "")
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, "empty seed value", res.Error)
}

func TestExecuteChainRejectsUnknownType(t *testing.T) {
	e := New(nil, rules.NewLegend(nil), newFakeRuleExecutor(), nil, nil, nil)
	rule := model.ChainRule{ID: "r1", ChainConfig: model.ChainConfig{Type: model.ChainType("not_a_real_strategy")}}
	res, err := e.ExecuteChain(context.Background(), rule, Seed{Value: "acme"}, "")
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Status)
}

// Grounded on the officer-appointments-then-company-officers worked
// scenario: at depth 0 only the officer-appointments step succeeds on
// the root company, yielding 2 companies; at depth 1 only the
// company-officers step succeeds on each, yielding 3 officers apiece.
// 2 companies + 6 distinct officers = 8 discovered nodes.
func TestRecursiveExpansionOfficerChain(t *testing.T) {
	exec := newFakeRuleExecutor()
	exec.on("OFFICER_APPOINTMENTS", "Acme Corp", RuleResult{
		Status: "success",
		Data:   map[string]interface{}{"companies": []string{"Company A", "Company B"}},
	})
	exec.on("COMPANY_OFFICERS", "Company A", RuleResult{
		Status: "success",
		Data:   map[string]interface{}{"officers": []string{"Alice", "Bob", "Carol"}},
	})
	exec.on("COMPANY_OFFICERS", "Company B", RuleResult{
		Status: "success",
		Data:   map[string]interface{}{"officers": []string{"Dave", "Eve", "Frank"}},
	})

	legend := rules.NewLegend(map[string]string{"1": "companies", "2": "officers"})
	e := New(nil, legend, exec, nil, nil, nil)

	rule := model.ChainRule{
		ID: "officer-chain",
		ChainConfig: model.ChainConfig{
			Type:     model.ChainRecursiveExpansion,
			MaxDepth: 2,
			Steps: []model.Step{
				{Action: "OFFICER_APPOINTMENTS", ActionType: model.ActionTypeRule, OutputFields: []int{1}},
				{Action: "COMPANY_OFFICERS", ActionType: model.ActionTypeRule, OutputFields: []int{2}},
			},
		},
	}

	res, err := e.ExecuteChain(context.Background(), rule, Seed{Value: "Acme Corp"}, "")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.GreaterOrEqual(t, res.TotalResults, 3)
	assert.Equal(t, 8, res.UniqueEntities)
	assert.ElementsMatch(t, []string{"Company A", "Company B", "Alice", "Bob", "Carol", "Dave", "Eve", "Frank"}, nodeValues(res.AllEntities))
}

// Grounded on the cascading-ownership worked scenario: a shareholder is
// admitted only once its ownership percentage reaches the threshold
// (25% default), and only a corporate shareholder is walked further.
func TestOwnershipTreeAdmitsAboveThresholdOnly(t *testing.T) {
	exec := newFakeRuleExecutor()
	exec.on("SHAREHOLDERS", "Holdco", RuleResult{
		Status: "success",
		Data: map[string]interface{}{"shareholders": []interface{}{
			map[string]interface{}{"name": "Jane Doe", "ownership_pct": 40.0, "type": "person"},
			map[string]interface{}{"name": "Minority Person", "ownership_pct": 10.0, "type": "person"},
			map[string]interface{}{"name": "Subco", "ownership_pct": 60.0, "type": "company"},
		}},
	})
	exec.on("SHAREHOLDERS", "Subco", RuleResult{
		Status: "success",
		Data: map[string]interface{}{"shareholders": []interface{}{
			map[string]interface{}{"name": "John Smith", "ownership_pct": 100.0, "type": "person"},
		}},
	})

	e := New(nil, rules.NewLegend(nil), exec, nil, nil, nil)
	rule := model.ChainRule{
		ID: "ownership-chain",
		ChainConfig: model.ChainConfig{
			Type:     model.ChainCascadingOwnership,
			MaxDepth: 3,
			Steps:    []model.Step{{Action: "SHAREHOLDERS", ActionType: model.ActionTypeRule}},
		},
	}

	res, err := e.ExecuteChain(context.Background(), rule, Seed{Value: "Holdco"}, "")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)

	values := nodeValues(res.AllEntities)
	assert.Contains(t, values, "Jane Doe")
	assert.Contains(t, values, "Subco")
	assert.Contains(t, values, "John Smith")
	assert.NotContains(t, values, "Minority Person", "10%% ownership is below the 25%% default threshold")
}

// Verifies the dual-counter design: the processed set (checked at pop
// time) gates whether a value becomes a graph node, so the root's own
// email never appears as a node even when it resurfaces in a later
// hop's data; the discoveries counter increments at extraction time
// regardless, so it can legitimately exceed the node count.
func TestOsintCascadeTracksDuplicateDiscoveriesSeparatelyFromNodes(t *testing.T) {
	exec := newFakeRuleExecutor()
	exec.on("OSINT_FROM_EMAIL", "jane.doe@example.com", RuleResult{
		Status: "success",
		Source: "dehashed",
		Data:   map[string]interface{}{"phone": "+1-555-0100", "handle": "jane_doe"},
	})
	exec.on("OSINT_FROM_USERNAME", "jane_doe", RuleResult{
		Status: "success",
		Source: "dehashed",
		// The contact_email field matches both the "email" and "mail"
		// extraction patterns, so this single field yields two raw
		// discoveries of the same new address.
		Data: map[string]interface{}{"contact_email": "second@example.net"},
	})

	e := New(nil, rules.NewLegend(nil), exec, nil, nil, nil)
	rule := model.ChainRule{
		ID:          "osint-cascade",
		ChainConfig: model.ChainConfig{Type: model.ChainOSINTCascade, MaxDepth: 3},
	}

	res, err := e.ExecuteChain(context.Background(), rule, Seed{Value: "jane.doe@example.com", Type: "email"}, "")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "jane.doe@example.com", res.EntityGraph.Root)

	values := nodeValues(res.AllEntities)
	assert.ElementsMatch(t, []string{"+1-555-0100", "jane_doe", "second@example.net"}, values)
	assert.NotContains(t, values, "jane.doe@example.com", "the seed itself is never recorded as a discovered node")
	assert.Equal(t, 4, res.UniqueEntities)
	assert.Equal(t, "queue_exhausted", res.StoppedReason)
}

func TestPlaybookFanoutMergesConcurrentRuleResults(t *testing.T) {
	reg := rules.NewRegistry()
	reg.PutPlaybook(model.Playbook{ID: "UK_CORPORATE_SWEEP", Rules: []string{"COMPANIES_HOUSE_LOOKUP", "OPENCORPORATES_LOOKUP"}})

	exec := newFakeRuleExecutor()
	exec.on("COMPANIES_HOUSE_LOOKUP", "Acme Ltd", RuleResult{Status: "success", Source: "companies_house", Data: map[string]interface{}{"registered_number": "12345678"}})
	exec.on("OPENCORPORATES_LOOKUP", "Acme Ltd", RuleResult{Status: "success", Source: "opencorporates", Data: map[string]interface{}{"jurisdiction_code": "gb"}})

	e := New(reg, rules.NewLegend(nil), exec, nil, nil, nil)
	rule := model.ChainRule{
		ID: "playbook-cascade",
		ChainConfig: model.ChainConfig{
			Type:     model.ChainPlaybookCascade,
			MaxDepth: 1,
			Steps:    []model.Step{{Action: "{jurisdiction}_CORPORATE_SWEEP", ActionType: model.ActionTypePlaybook}},
		},
	}

	res, err := e.ExecuteChain(context.Background(), rule, Seed{Value: "Acme Ltd"}, "uk")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	require.Len(t, res.AllResults, 1)
	assert.Equal(t, "success", res.AllResults[0].Status)
	assert.Equal(t, "12345678", res.AllResults[0].Data["registered_number"])
	assert.Equal(t, "gb", res.AllResults[0].Data["jurisdiction_code"])
}

func TestMediaAggregationDedupesByURLThenTitle(t *testing.T) {
	exec := newFakeRuleExecutor()
	exec.on("NEWS_SEARCH", "Acme Corp", RuleResult{
		Status: "success",
		Data: map[string]interface{}{"items": []interface{}{
			map[string]interface{}{"url": "https://news.example/1", "title": "Acme wins award"},
			map[string]interface{}{"url": "https://news.example/1", "title": "duplicate url, different title"},
			map[string]interface{}{"title": "No URL At All"},
			map[string]interface{}{"title": "No URL At All"},
		}},
	})

	e := New(nil, rules.NewLegend(nil), exec, nil, nil, nil)
	rule := model.ChainRule{
		ID: "media-aggregation",
		ChainConfig: model.ChainConfig{
			Type:  model.ChainMediaAggregation,
			Steps: []model.Step{{Action: "NEWS_SEARCH", ActionType: model.ActionTypeRule}},
		},
	}

	res, err := e.ExecuteChain(context.Background(), rule, Seed{Value: "Acme Corp"}, "")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, 2, res.Metrics["total_items"])
}

func TestEntityGraphSuppressesSelfEdges(t *testing.T) {
	var g model.EntityGraph
	g.AddEdge("same", "same", "recursive_expansion")
	assert.Empty(t, g.Edges)

	g.AddEdge("a", "b", "recursive_expansion")
	assert.Len(t, g.Edges, 1)
}
