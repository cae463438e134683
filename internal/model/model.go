// Package model defines the core data types shared by the Submarine
// acquisition pipeline and chain executor: rule tables, Common Crawl
// records, dive plans, page records, and the entity types produced by
// extraction and chain expansion.
package model

import (
	"strconv"
	"strings"
	"time"
)

// RuleKind distinguishes a single rule call from a playbook (a sequence
// of rules) and a chain rule (a recursive strategy over the two).
type RuleKind string

const (
	RuleKindRule     RuleKind = "rule"
	RuleKindPlaybook RuleKind = "playbook"
)

// RuleDef is a single typed transformation loaded from the static rule
// table. Immutable once loaded by the Rule Registry.
type RuleDef struct {
	ID          string
	Kind        RuleKind
	ChainConfig *ChainConfig
}

// ChainConfig carries the recursive-strategy parameters for a RuleDef
// whose Kind allows chain execution. Present only on chain rules.
type ChainConfig struct {
	Type                   ChainType
	MaxDepth               int
	Steps                  []Step
	OwnershipThresholdPct  float64
	ClusterThreshold       int
	NetworkThreshold       int
	RelevanceThreshold     float64
	AIConfidenceThreshold  float64
	DecayPerStep           float64
	DeduplicationFields    []string
}

// ChainType enumerates the recursive strategies the Chain Executor can
// dispatch to.
type ChainType string

const (
	ChainRecursiveExpansion      ChainType = "recursive_expansion"
	ChainCascadingOwnership      ChainType = "cascading_ownership"
	ChainHierarchicalExpansion   ChainType = "hierarchical_expansion"
	ChainClusteringNetwork       ChainType = "clustering_network"
	ChainPortfolioExpansion      ChainType = "portfolio_expansion"
	ChainNetworkExpansion        ChainType = "network_expansion"
	ChainEntityNetworkExtraction ChainType = "entity_network_extraction"
	ChainPlaybookCascade         ChainType = "playbook_cascade"
	ChainMultiJurisdictionSweep  ChainType = "multi_jurisdiction_sweep"
	ChainDomainToCorporatePivot  ChainType = "domain_to_corporate_pivot"
	ChainComplianceStack         ChainType = "compliance_stack"
	ChainMediaAggregation        ChainType = "media_aggregation"
	ChainOSINTCascade            ChainType = "osint_cascade"
	ChainOSINTBreachNetwork      ChainType = "osint_breach_network"
	ChainOSINTPersonWeb          ChainType = "osint_person_web"
)

// ActionType distinguishes a Step's action between a plain rule call and
// a playbook reference.
type ActionType string

const (
	ActionTypeRule     ActionType = "rule"
	ActionTypePlaybook ActionType = "playbook"
)

// Step is one element of a chain rule's pipeline: an action to run, the
// condition under which it applies, the output fields to harvest
// entities from (int codes resolved via the Legend), and an optional
// fallback playbook pattern.
type Step struct {
	Action          string
	ActionType      ActionType
	Condition       string
	OutputFields    []int
	FallbackPattern string
}

// Playbook is an ordered sequence of rule IDs scoped to an optional
// jurisdiction.
type Playbook struct {
	ID           string
	Label        string
	Rules        []string
	Jurisdiction string
}

// ChainRule pairs an id/label with its ChainConfig, as loaded from
// chain_rules.json.
type ChainRule struct {
	ID          string
	Label       string
	ChainConfig ChainConfig
}

// CCRecord is a single Common Crawl index hit: a byte-range within a
// named WARC file. (filename, offset, length) is the dedup key across
// multi-archive dive plans.
type CCRecord struct {
	URL       string
	Filename  string
	Offset    int64
	Length    int64
	Status    int
	MIME      string
	Timestamp string
	Digest    string
}

// Key returns the canonical dedup key for a CCRecord.
func (r CCRecord) Key() string {
	return r.Filename + "\x00" + strconv.FormatInt(r.Offset, 10) + "\x00" + strconv.FormatInt(r.Length, 10)
}

// DiveTarget is one domain worth of acquisition work within a DivePlan:
// its priority (1 highest, 5 lowest), where it was discovered, and the
// CC records to fetch for it.
type DiveTarget struct {
	Domain          string
	Priority        int
	Source          string
	CCRecords       []CCRecord
	EstimatedPages  int
}

// EstimatedFetchTime estimates wall-clock fetch time for this target at
// the tunable per-record constant tau (default 100ms).
func (t DiveTarget) EstimatedFetchTime(tau time.Duration) time.Duration {
	return time.Duration(t.EstimatedPages) * tau
}

// DivePlan is the prioritized, checkpointable acquisition plan produced
// by the Dive Planner and executed by the Deep Diver.
type DivePlan struct {
	Query               string
	QueryType           string
	CreatedAt           time.Time
	Targets             []DiveTarget
	TotalDomains        int
	TotalPages          int
	EstimatedTime       time.Duration
	EstimatedWARCBytes  int64
	SonarIndicesUsed    []string
	CCArchivesQueried   []string
	CompletedDomains    map[string]bool
}

// NewDivePlan returns an empty plan ready for targets to be appended via
// AddTarget.
func NewDivePlan(query, queryType string, now time.Time) *DivePlan {
	return &DivePlan{
		Query:            query,
		QueryType:        queryType,
		CreatedAt:        now,
		CompletedDomains: make(map[string]bool),
	}
}

// AddTarget appends a target and keeps the plan's running totals
// consistent with the invariant that total_* equals the sum over
// targets.
func (p *DivePlan) AddTarget(t DiveTarget, tau time.Duration) {
	p.Targets = append(p.Targets, t)
	p.TotalDomains++
	p.TotalPages += t.EstimatedPages
	p.EstimatedTime += t.EstimatedFetchTime(tau)
	for _, r := range t.CCRecords {
		p.EstimatedWARCBytes += r.Length
	}
}

// PageRecord is a fetched and decoded archive page: normalized domain,
// stripped content, parsed JSON-LD schemas, and outbound links.
type PageRecord struct {
	URL        string
	Domain     string
	Title      string
	Content    string
	Links      []string
	Schemas    []map[string]interface{}
	HTTPStatus int
	CrawlDate  string
	WARCFile   string
}

// ExtractedEntity is a single typed value recovered from a PageRecord by
// the Extractor. Confidence is fixed per extractor family.
type ExtractedEntity struct {
	Value      string
	EntityType string
	Confidence float64
	Source     string
	Context    string
	Metadata   map[string]interface{}
}

// DedupKey returns the canonical per-page dedup key:
// (lower(value.strip()), entity_type).
func (e ExtractedEntity) DedupKey() string {
	return normalizeValue(e.Value) + "\x00" + e.EntityType
}

// ChainEntityNode is a node discovered during chain expansion: its
// depth, relevance, and whether it needs manual verification
// (relevance < 0.5).
type ChainEntityNode struct {
	Value             string
	Type              string
	Depth             int
	Relevance         float64
	Data              map[string]interface{}
	Confidence        float64
	NeedsVerification bool
}

// NewChainEntityNode builds a node and derives NeedsVerification from
// relevance, per spec: needs_verification = (relevance < 0.5).
func NewChainEntityNode(value, typ string, depth int, relevance float64, data map[string]interface{}) ChainEntityNode {
	return ChainEntityNode{
		Value:             value,
		Type:              typ,
		Depth:             depth,
		Relevance:         relevance,
		Data:              data,
		Confidence:        relevance,
		NeedsVerification: relevance < 0.5,
	}
}

// EntityEdge is a directed edge in an EntityGraph pointing from a
// shallower hop to a deeper one.
type EntityEdge struct {
	From string
	To   string
	Type string
}

// EntityGraph is the per-chain-run discovery graph: a DAG of nodes and
// typed edges rooted at the seed value. The same entity value may
// appear as multiple nodes if discovered under different parents before
// dedup coalesces them.
type EntityGraph struct {
	Root  string
	Nodes []ChainEntityNode
	Edges []EntityEdge
}

// AddNode appends a node to the graph.
func (g *EntityGraph) AddNode(n ChainEntityNode) {
	g.Nodes = append(g.Nodes, n)
}

// AddEdge appends an edge unless it is a self-edge (from == to), which
// the dedup pass is expected to suppress per spec.md's OSINT cascade
// scenario ("the self-edge to jane.doe is suppressed by dedupe").
func (g *EntityGraph) AddEdge(from, to, typ string) {
	if normalizeValue(from) == normalizeValue(to) {
		return
	}
	g.Edges = append(g.Edges, EntityEdge{From: from, To: to, Type: typ})
}

// ShareholderRecord describes one shareholder of a company, used by the
// cascading/hierarchical ownership strategies.
type ShareholderRecord struct {
	Name         string
	OwnershipPct float64
	Type         string // "person" | "company"
}

// HoldingRecord describes one holding in a portfolio, used by the
// portfolio expansion strategy.
type HoldingRecord struct {
	Name         string
	OwnershipPct float64
	Type         string // "person" | "company"
}

// OfficerRecord is a corporate officer and the companies they are
// appointed to, used by clustering/network expansion.
type OfficerRecord struct {
	Name         string
	Appointments []string
}

// CompanyRecord is a company and its known officers, used by clustering
// and network expansion.
type CompanyRecord struct {
	Name     string
	Officers []string
}

// BreachAccount is one credential record surfaced by a breach lookup,
// used by the osint_breach_network strategy.
type BreachAccount struct {
	Email        string
	Username     string
	Password     string
	PasswordHash string
	BreachSource string
}

// MediaItem is one media hit aggregated by the media_aggregation
// strategy, deduped by URL (falling back to Title) and capped at 100.
type MediaItem struct {
	URL         string
	Title       string
	PublishedAt string
	Source      string
}

// WhoisRecord is a domain registration lookup result, used by the
// osint_person_web domain-ownership step.
type WhoisRecord struct {
	Domain           string
	RegistrantName   string
	RegistrantOrg    string
	RegistrationDate string
}

func normalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
