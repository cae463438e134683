package chain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zadorian/submarine/internal/model"
)

// osintCascade implements the priority-ordered OSINT expansion: each
// hop runs the unified OSINT lookup for the popped value's entity type,
// extracts candidate entities from the result, scores each by
// RelevanceScore, and pushes it back onto the relevance queue (highest
// relevance expanded first). Two distinct counters are kept, mirroring
// the original chain_executor: `processed`, checked when an item is
// popped, gates whether its lookup runs and whether it becomes a graph
// node (so the root itself never becomes a node, and a value already
// visited under one parent is never revisited under another); the
// discoveries counter increments once per raw extracted candidate at
// extraction time, before any dedup — so a value that legitimately
// reappears in a later hop's data (e.g. the seed email echoed back in
// a username lookup's result) is still counted, even though it yields
// no new node.
func (e *Executor) osintCascade(ctx context.Context, chainRule model.ChainRule, seed Seed) (*Result, error) {
	cc := chainRule.ChainConfig
	maxDepth := cc.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	relevanceThreshold := cc.RelevanceThreshold
	if relevanceThreshold <= 0 {
		relevanceThreshold = DefaultMinRelevance
	}
	maxEntities := DefaultMaxEntities
	scoringCfg := scoringConfigFor(cc)

	var allResults []StepResult
	var graph model.EntityGraph
	processed := map[string]struct{}{}
	discoveries := 0
	stoppedReason := "queue_exhausted"

	queue := newRelevanceQueue()
	queue.push(workItem{Value: seed.Value, Type: seed.Type, Depth: 0})

	for queue.len() > 0 {
		item, ok := queue.pop()
		if !ok {
			break
		}
		if item.Depth > maxDepth {
			continue
		}
		key := entityKey(item.Type, item.Value)
		if _, dup := processed[key]; dup {
			continue
		}
		processed[key] = struct{}{}

		if item.Parent != "" {
			node := model.NewChainEntityNode(item.Value, item.Type, item.Depth, item.Relevance, nil)
			graph.AddNode(node)
			graph.AddEdge(item.Parent, item.Value, "osint_cascade")
			if e.store != nil {
				if err := e.store.PersistEntity(ctx, node); err != nil {
					e.emit("cymonides:error", map[string]interface{}{"value": item.Value, "error": err.Error()})
				}
			}
			if len(graph.Nodes) >= maxEntities {
				stoppedReason = "max_entities_reached"
				break
			}
		}

		if item.Depth >= maxDepth {
			continue
		}

		result, sr := e.executeOSINTLookup(ctx, item.Value, item.Type)
		allResults = append(allResults, sr)
		if !result.ok() {
			continue
		}

		sourceChain := append(append([]string{}, item.SourceChain...), result.Source)
		chainProv := ChainProvenance(sourceChain)

		for _, ev := range extractEntitiesFromData(result.Data) {
			discoveries++
			relevance := RelevanceScore(ev.Value, seed.Value, item.Depth+1, scoringCfg, result.Source, chainProv)
			if relevance < relevanceThreshold {
				continue
			}
			queue.push(workItem{
				Value:       ev.Value,
				Type:        ev.Type,
				Depth:       item.Depth + 1,
				Relevance:   relevance,
				Parent:      item.Value,
				SourceChain: sourceChain,
			})
		}
	}

	return &Result{
		Status:         "success",
		AllResults:     allResults,
		AllEntities:    graph.Nodes,
		EntityGraph:    graph,
		UniqueEntities: discoveries,
		StoppedReason:  stoppedReason,
	}, nil
}

// osintBreachNetwork looks up breach accounts for the seed credential
// and clusters the results three ways: by shared password (cluster
// size >= 2), by shared breach source, and by credential reuse (the
// same identifier surfacing in >= 2 distinct breach sources).
func (e *Executor) osintBreachNetwork(ctx context.Context, chainRule model.ChainRule, seed Seed) (*Result, error) {
	result, sr := e.executeBreachLookup(ctx, seed.Value, seed.Type)
	allResults := []StepResult{sr}
	if !result.ok() {
		return &Result{Status: "success", AllResults: allResults}, nil
	}

	accounts := parseBreachAccounts(result.Data)

	var graph model.EntityGraph
	passwordClusters := map[string][]string{}
	sourceClusters := map[string][]string{}
	reuseSources := map[string]map[string]struct{}{}
	identifiers := map[string]struct{}{}

	for _, acct := range accounts {
		id := acct.Email
		if id == "" {
			id = acct.Username
		}
		if id == "" {
			continue
		}
		identifiers[id] = struct{}{}

		graph.AddNode(model.NewChainEntityNode(id, "credential", 1, 1.0, map[string]interface{}{
			"breach_source": acct.BreachSource,
		}))
		graph.AddEdge(seed.Value, id, "breach_account")

		if acct.Password != "" {
			passwordClusters[acct.Password] = append(passwordClusters[acct.Password], id)
		}
		if acct.BreachSource != "" {
			sourceClusters[acct.BreachSource] = append(sourceClusters[acct.BreachSource], id)
			set, ok := reuseSources[id]
			if !ok {
				set = map[string]struct{}{}
				reuseSources[id] = set
			}
			set[acct.BreachSource] = struct{}{}
		}
	}

	passwordClusterOut := filterClusters(passwordClusters, 2)
	sourceClusterOut := filterClusters(sourceClusters, 2)

	var reused []string
	for id, sources := range reuseSources {
		if len(sources) >= 2 {
			reused = append(reused, id)
		}
	}
	sort.Strings(reused)

	return &Result{
		Status:         "success",
		AllResults:     allResults,
		AllEntities:    graph.Nodes,
		EntityGraph:    graph,
		UniqueEntities: len(identifiers),
		Metrics: map[string]interface{}{
			"password_clusters":      passwordClusterOut,
			"breach_source_clusters": sourceClusterOut,
			"credential_reuse":       reused,
		},
	}, nil
}

// filterClusters returns the subset of clusters whose member count
// reaches minSize, with member lists sorted for deterministic output.
func filterClusters(clusters map[string][]string, minSize int) map[string][]string {
	out := map[string][]string{}
	for key, members := range clusters {
		if len(members) < minSize {
			continue
		}
		sorted := append([]string(nil), members...)
		sort.Strings(sorted)
		out[key] = sorted
	}
	return out
}

// osintPersonWeb runs the seven-step person-centric pipeline: person
// lookup, social-profile lookup, breach lookup, corporate-affiliation
// lookup, domain-ownership admission (a WHOIS registrant name matching
// any discovered person name, excluding free-mail domains), identity
// resolution into a consolidated node, and — when max_depth allows a
// second hop — recursive expansion of the discovered social profiles.
func (e *Executor) osintPersonWeb(ctx context.Context, chainRule model.ChainRule, seed Seed) (*Result, error) {
	cc := chainRule.ChainConfig
	maxDepth := cc.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}

	var allResults []StepResult
	var graph model.EntityGraph
	discoveredNames := map[string]struct{}{}
	var socialProfiles []string

	personResult, sr := e.executePersonLookup(ctx, seed.Value, seed.Type)
	allResults = append(allResults, sr)
	searchTerm := seed.Value
	if personResult.ok() {
		if name := asString(personResult.Data, "name"); name != "" {
			searchTerm = name
		}
		for _, ev := range extractEntitiesFromData(personResult.Data) {
			if ev.Type != "person_name" {
				continue
			}
			discoveredNames[strings.ToLower(ev.Value)] = struct{}{}
			graph.AddNode(model.NewChainEntityNode(ev.Value, "person_name", 1, 1.0, nil))
			graph.AddEdge(seed.Value, ev.Value, "person_lookup")
		}
	}

	socialResult, sr := e.executeSocialLookup(ctx, searchTerm)
	allResults = append(allResults, sr)
	if socialResult.ok() {
		for _, ev := range extractEntitiesFromData(socialResult.Data) {
			graph.AddNode(model.NewChainEntityNode(ev.Value, ev.Type, 1, 1.0, nil))
			graph.AddEdge(seed.Value, ev.Value, "social_lookup")
			if ev.Type == "domain" || ev.Type == "username" {
				socialProfiles = append(socialProfiles, ev.Value)
			}
		}
	}

	breachResult, sr := e.executeBreachLookup(ctx, seed.Value, seed.Type)
	allResults = append(allResults, sr)
	if breachResult.ok() {
		for _, acct := range parseBreachAccounts(breachResult.Data) {
			id := acct.Email
			if id == "" {
				id = acct.Username
			}
			if id == "" {
				continue
			}
			graph.AddNode(model.NewChainEntityNode(id, "credential", 1, 1.0, map[string]interface{}{
				"breach_source": acct.BreachSource,
			}))
			graph.AddEdge(seed.Value, id, "breach_lookup")
		}
	}

	corpResult, sr := e.executeCorporateLookup(ctx, searchTerm)
	allResults = append(allResults, sr)
	if corpResult.ok() {
		for _, off := range parseOfficers(corpResult.Data) {
			for _, company := range off.Appointments {
				graph.AddNode(model.NewChainEntityNode(company, "company", 1, 1.0, nil))
				graph.AddEdge(seed.Value, company, "corporate_lookup")
			}
		}
	}

	domainResult, sr := e.executeDomainLookup(ctx, seed.Value)
	allResults = append(allResults, sr)
	if domainResult.ok() {
		if records, ok := parseWhoisRecords(domainResult.Data); ok && !isFreeMailDomain(records[0].Domain) {
			var matches []model.WhoisRecord
			for _, whois := range records {
				registrant := strings.ToLower(whois.RegistrantName)
				if registrant == "" {
					continue
				}
				for name := range discoveredNames {
					if strings.Contains(registrant, name) || strings.Contains(name, registrant) {
						matches = append(matches, whois)
						break
					}
				}
			}
			switch len(matches) {
			case 0:
				// no registrant name overlaps a discovered person; nothing to admit.
			case 1:
				whois := matches[0]
				graph.AddNode(model.NewChainEntityNode(whois.Domain, "domain", 1, 1.0, map[string]interface{}{
					"registrant_name":   whois.RegistrantName,
					"registrant_org":    whois.RegistrantOrg,
					"registration_date": whois.RegistrationDate,
				}))
				graph.AddEdge(seed.Value, whois.Domain, "domain_ownership")
			default:
				names := make([]string, len(matches))
				for i, m := range matches {
					names[i] = m.RegistrantName
				}
				e.bus.Warn("osint_person_web", fmt.Sprintf(
					"domain %s has %d WHOIS registrants matching a discovered person (%s) — admitting none rather than guessing",
					matches[0].Domain, len(matches), strings.Join(names, ", ")))
			}
		}
	}

	if len(discoveredNames) > 0 {
		names := make([]string, 0, len(discoveredNames))
		for n := range discoveredNames {
			names = append(names, n)
		}
		sort.Strings(names)
		graph.AddNode(model.NewChainEntityNode(seed.Value, "identity", 0, 1.0, map[string]interface{}{
			"resolved_names": names,
		}))
	}

	if maxDepth > 1 {
		sort.Strings(socialProfiles)
		for _, profile := range socialProfiles {
			result, sr := e.executeSocialLookup(ctx, profile)
			allResults = append(allResults, sr)
			if !result.ok() {
				continue
			}
			for _, ev := range extractEntitiesFromData(result.Data) {
				graph.AddNode(model.NewChainEntityNode(ev.Value, ev.Type, 2, 1.0, nil))
				graph.AddEdge(profile, ev.Value, "social_expansion")
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
