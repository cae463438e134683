package chain

import (
	"context"
	"sort"
	"strings"

	"github.com/zadorian/submarine/internal/model"
)

// clusteringNetwork seeds entities sharing an attribute, discovers
// officer->company relations across every step, then groups officers
// by the set of companies each appears in, emitting a cluster whenever
// an officer's company count reaches cluster_threshold (default 2).
func (e *Executor) clusteringNetwork(ctx context.Context, chainRule model.ChainRule, initialInput string) (*Result, error) {
	cc := chainRule.ChainConfig
	clusterThreshold := cc.ClusterThreshold
	if clusterThreshold <= 0 {
		clusterThreshold = 2
	}

	var allResults []StepResult
	var graph model.EntityGraph
	officerCompanies := map[string]map[string]struct{}{}

	for _, step := range cc.Steps {
		result, sr := e.executeStep(ctx, step, initialInput, "")
		allResults = append(allResults, sr)
		if result.Status != "success" {
			continue
		}

		for _, off := range parseOfficers(result.Data) {
			set, ok := officerCompanies[off.Name]
			if !ok {
				set = map[string]struct{}{}
				officerCompanies[off.Name] = set
			}
			for _, c := range off.Appointments {
				set[c] = struct{}{}
				graph.AddEdge(off.Name, c, "appointment")
			}
		}
	}

	clusters := map[string][]string{}
	names := make([]string, 0, len(officerCompanies))
	for officer := range officerCompanies {
		names = append(names, officer)
	}
	sort.Strings(names)
	for _, officer := range names {
		companies := officerCompanies[officer]
		if len(companies) < clusterThreshold {
			continue
		}
		companyList := make([]string, 0, len(companies))
		for c := range companies {
			companyList = append(companyList, c)
		}
		sort.Strings(companyList)
		clusters[officer] = companyList

		graph.AddNode(model.NewChainEntityNode(officer, "officer", 1, 1.0,
			map[string]interface{}{"companies": companyList}))
	}

	return &Result{
		Status:      "success",
		AllResults:  allResults,
		AllEntities: graph.Nodes,
		EntityGraph: graph,
		Metrics:     map[string]interface{}{"clusters": clusters},
	}, nil
}

// networkExpansion BFS-walks the officer<->company bipartite graph,
// adding officers and companies as nodes and appointment edges, and
// computes end-of-run metrics: officer/company/edge totals, average
// appointments per officer, and officers whose appointment count
// reaches network_threshold (default 2, "shared appointments").
func (e *Executor) networkExpansion(ctx context.Context, chainRule model.ChainRule, initialInput string) (*Result, error) {
	cc := chainRule.ChainConfig
	maxDepth := cc.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	networkThreshold := cc.NetworkThreshold
	if networkThreshold <= 0 {
		networkThreshold = 2
	}

	var step model.Step
	if len(cc.Steps) > 0 {
		step = cc.Steps[0]
	}

	var allResults []StepResult
	var graph model.EntityGraph
	seenCompanies := map[string]struct{}{}
	officerCompanies := map[string]map[string]struct{}{}

	type queued struct {
		value string
		depth int
	}
	queue := []queued{{initialInput, 0}}
	processed := map[string]struct{}{}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= maxDepth {
			continue
		}
		if _, dup := processed[item.value]; dup {
			continue
		}
		processed[item.value] = struct{}{}

		result, sr := e.executeStep(ctx, step, item.value, "")
		allResults = append(allResults, sr)
		if result.Status != "success" {
			continue
		}

		for _, off := range parseOfficers(result.Data) {
			set, ok := officerCompanies[off.Name]
			if !ok {
				set = map[string]struct{}{}
				officerCompanies[off.Name] = set
				graph.AddNode(model.NewChainEntityNode(off.Name, "officer", item.depth+1, 1.0, nil))
			}
			for _, c := range off.Appointments {
				set[c] = struct{}{}
				graph.AddEdge(off.Name, c, "appointment")
				if _, dup := seenCompanies[c]; dup {
					continue
				}
				seenCompanies[c] = struct{}{}
				graph.AddNode(model.NewChainEntityNode(c, "company", item.depth+1, 1.0, nil))
				queue = append(queue, queued{c, item.depth + 1})
			}
		}
	}

	totalEdges := 0
	sharedAppointments := 0
	for _, companies := range officerCompanies {
		totalEdges += len(companies)
		if len(companies) >= networkThreshold {
			sharedAppointments++
		}
	}
	avgAppointments := 0.0
	if len(officerCompanies) > 0 {
		avgAppointments = float64(totalEdges) / float64(len(officerCompanies))
	}

	return &Result{
		Status:      "success",
		AllResults:  allResults,
		AllEntities: graph.Nodes,
		EntityGraph: graph,
		Metrics: map[string]interface{}{
			"total_officers":               len(officerCompanies),
			"total_companies":              len(seenCompanies),
			"total_edges":                  totalEdges,
			"avg_appointments_per_officer": avgAppointments,
			"shared_appointments":          sharedAppointments,
		},
	}, nil
}

// entityNetworkExtraction runs the chain rule's first 3 steps
// (officers, UBOs, shareholders) against the center company to extract
// person names; if max_depth > 1 and a 4th step is present, it runs
// that step against each person to discover their other appointments,
// excluding the center company from the secondary results.
func (e *Executor) entityNetworkExtraction(ctx context.Context, chainRule model.ChainRule, initialInput string) (*Result, error) {
	cc := chainRule.ChainConfig
	maxDepth := cc.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	steps := cc.Steps

	var allResults []StepResult
	var graph model.EntityGraph
	persons := map[string]struct{}{}

	extractionSteps := steps
	if len(extractionSteps) > 3 {
		extractionSteps = extractionSteps[:3]
	}
	for _, step := range extractionSteps {
		result, sr := e.executeStep(ctx, step, initialInput, "")
		allResults = append(allResults, sr)
		if result.Status != "success" {
			continue
		}
		for _, ev := range extractEntitiesFromData(result.Data) {
			if ev.Type != "person_name" {
				continue
			}
			if _, dup := persons[ev.Value]; dup {
				continue
			}
			persons[ev.Value] = struct{}{}
			graph.AddNode(model.NewChainEntityNode(ev.Value, "person", 1, 1.0, nil))
			graph.AddEdge(initialInput, ev.Value, "officer")
		}
	}

	if maxDepth > 1 && len(steps) > 3 {
		expansionStep := steps[3]
		personNames := make([]string, 0, len(persons))
		for p := range persons {
			personNames = append(personNames, p)
		}
		sort.Strings(personNames)

		for _, person := range personNames {
			result, sr := e.executeStep(ctx, expansionStep, person, "")
			allResults = append(allResults, sr)
			if result.Status != "success" {
				continue
			}
			for _, company := range parseCompanies(result.Data) {
				if strings.EqualFold(company.Name, initialInput) {
					continue
				}
				graph.AddNode(model.NewChainEntityNode(company.Name, "company", 2, 1.0, nil))
				graph.AddEdge(person, company.Name, "appointment")
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
