// Package rules loads the static rule, playbook, and chain-rule tables
// and exposes read-only, id-indexed lookups. Tables are loaded once at
// startup and never mutated afterward; load failures are fatal
// (configuration errors per spec.md §7), matching the source system's
// contract that the Rule Registry has no network dependency.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zadorian/submarine/internal/model"
)

// Registry is an immutable, concurrency-safe lookup table over rules,
// playbooks, and chain rules. Every goroutine may read without locking
// once LoadDir has returned, but a sync.RWMutex guards the maps since
// LoadDir itself is not required to run before any other goroutine starts
// (e.g. hot-reload callers).
type Registry struct {
	mu         sync.RWMutex
	rules      map[string]model.RuleDef
	playbooks  map[string]model.Playbook
	chainRules map[string]model.ChainRule
}

// NewRegistry returns an empty Registry. Use LoadDir or the Put*
// methods to populate it.
func NewRegistry() *Registry {
	return &Registry{
		rules:      make(map[string]model.RuleDef),
		playbooks:  make(map[string]model.Playbook),
		chainRules: make(map[string]model.ChainRule),
	}
}

// tableFiles names the files LoadDir looks for, in the order spec.md §6
// requires: playbooks_validated.json takes precedence over
// playbooks.json when both are present.
type tableFiles struct {
	rules              string
	playbooks          string
	playbooksValidated string
	chainRules         string
	legend             string
}

func defaultTableFiles(dir string) tableFiles {
	return tableFiles{
		rules:              filepath.Join(dir, "rules"),
		playbooks:          filepath.Join(dir, "playbooks"),
		playbooksValidated: filepath.Join(dir, "playbooks_validated"),
		chainRules:         filepath.Join(dir, "chain_rules"),
		legend:             filepath.Join(dir, "legend"),
	}
}

// LoadDir loads rules.json, playbooks.json (or playbooks_validated.json
// if present), chain_rules.json, and legend.json from dir. Each base
// name is tried with both .json and .yaml/.yml extensions, accepting
// whichever is present. Returns a fatal error on any malformed or
// missing required table (rules and chain_rules are required; playbooks
// and legend may be absent).
func LoadDir(dir string) (*Registry, *Legend, error) {
	reg := NewRegistry()
	files := defaultTableFiles(dir)

	var ruleDefs []ruleDefJSON
	if err := loadTable(files.rules, &ruleDefs); err != nil {
		return nil, nil, fmt.Errorf("loading rule table: %w", err)
	}
	for _, rd := range ruleDefs {
		reg.rules[rd.ID] = rd.toModel()
	}

	var chainRuleDefs []chainRuleJSON
	if err := loadTable(files.chainRules, &chainRuleDefs); err != nil {
		return nil, nil, fmt.Errorf("loading chain rule table: %w", err)
	}
	for _, cr := range chainRuleDefs {
		reg.chainRules[cr.ID] = cr.toModel()
	}

	playbookSrc := files.playbooksValidated
	if !tableExists(playbookSrc) {
		playbookSrc = files.playbooks
	}
	if tableExists(playbookSrc) {
		var pbs []playbookJSON
		if err := loadTable(playbookSrc, &pbs); err != nil {
			return nil, nil, fmt.Errorf("loading playbook table: %w", err)
		}
		for _, pb := range pbs {
			reg.playbooks[pb.ID] = pb.toModel()
		}
	}

	legend := NewLegend(nil)
	if tableExists(files.legend) {
		raw := make(map[string]string)
		if err := loadTable(files.legend, &raw); err != nil {
			return nil, nil, fmt.Errorf("loading legend table: %w", err)
		}
		legend = NewLegend(raw)
	}

	return reg, legend, nil
}

func tableExists(base string) bool {
	_, jerr := os.Stat(base + ".json")
	_, yerr := os.Stat(base + ".yaml")
	_, y2err := os.Stat(base + ".yml")
	return jerr == nil || yerr == nil || y2err == nil
}

// loadTable reads base+".json", falling back to base+".yaml"/".yml",
// and unmarshals into out.
func loadTable(base string, out interface{}) error {
	if data, err := os.ReadFile(base + ".json"); err == nil {
		return json.Unmarshal(data, out)
	}
	if data, err := os.ReadFile(base + ".yaml"); err == nil {
		return yaml.Unmarshal(data, out)
	}
	if data, err := os.ReadFile(base + ".yml"); err == nil {
		return yaml.Unmarshal(data, out)
	}
	return fmt.Errorf("no table found at %s.{json,yaml,yml}", base)
}

// MustLoadDir behaves like LoadDir but panics on error, matching
// spec.md §7's "Configuration error — missing/invalid rule tables at
// load: fatal, abort startup."
func MustLoadDir(dir string) (*Registry, *Legend) {
	reg, legend, err := LoadDir(dir)
	if err != nil {
		panic(fmt.Sprintf("rules: fatal configuration error: %v", err))
	}
	return reg, legend
}

// GetRule returns the rule def for id, or ok=false if absent.
func (r *Registry) GetRule(id string) (model.RuleDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rd, ok := r.rules[id]
	return rd, ok
}

// GetPlaybook returns the playbook for id, or ok=false if absent.
func (r *Registry) GetPlaybook(id string) (model.Playbook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pb, ok := r.playbooks[id]
	return pb, ok
}

// GetChainRule returns the chain rule for id, or ok=false if absent.
func (r *Registry) GetChainRule(id string) (model.ChainRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cr, ok := r.chainRules[id]
	return cr, ok
}

// PutRule registers (or overwrites) a rule def directly. Used by tests
// and by callers that build tables in memory rather than from disk.
func (r *Registry) PutRule(rd model.RuleDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rd.ID] = rd
}

// PutPlaybook registers (or overwrites) a playbook directly.
func (r *Registry) PutPlaybook(pb model.Playbook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playbooks[pb.ID] = pb
}

// PutChainRule registers (or overwrites) a chain rule directly.
func (r *Registry) PutChainRule(cr model.ChainRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chainRules[cr.ID] = cr
}

// ResolvePlaybookID resolves a playbook id pattern against a
// jurisdiction, per spec.md §4.1:
//   - "{jurisdiction}" is substituted, uppercased
//   - a trailing "*" expands into a prefix match, returning the first
//     id whose prefix matches
//   - a direct id (no "{" and no trailing "*") passes straight through
//     if it resolves
//   - a pattern still containing "{...}" after substitution (i.e. no
//     jurisdiction was supplied) returns ok=false: it requires caller
//     context the registry does not have.
func (r *Registry) ResolvePlaybookID(pattern, jurisdiction string) (string, bool) {
	resolved := pattern
	if jurisdiction != "" {
		resolved = strings.ReplaceAll(resolved, "{jurisdiction}", strings.ToUpper(jurisdiction))
	}

	if strings.Contains(resolved, "{") {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.HasSuffix(resolved, "*") {
		prefix := strings.TrimSuffix(resolved, "*")
		for id := range r.playbooks {
			if strings.HasPrefix(id, prefix) {
				return id, true
			}
		}
		return "", false
	}

	if _, ok := r.playbooks[resolved]; ok {
		return resolved, true
	}
	return "", false
}

// wire-format structs (separate from model.* to keep the storage
// representation decoupled from the in-memory one)

type ruleDefJSON struct {
	ID          string           `json:"id" yaml:"id"`
	Kind        string           `json:"kind" yaml:"kind"`
	ChainConfig *chainConfigJSON `json:"chain_config,omitempty" yaml:"chain_config,omitempty"`
}

func (rd ruleDefJSON) toModel() model.RuleDef {
	out := model.RuleDef{ID: rd.ID, Kind: model.RuleKind(rd.Kind)}
	if rd.ChainConfig != nil {
		cc := rd.ChainConfig.toModel()
		out.ChainConfig = &cc
	}
	return out
}

type chainConfigJSON struct {
	Type                  string     `json:"type" yaml:"type"`
	MaxDepth              int        `json:"max_depth" yaml:"max_depth"`
	Steps                 []stepJSON `json:"steps" yaml:"steps"`
	OwnershipThresholdPct float64    `json:"ownership_threshold_pct" yaml:"ownership_threshold_pct"`
	ClusterThreshold      int        `json:"cluster_threshold" yaml:"cluster_threshold"`
	NetworkThreshold      int        `json:"network_threshold" yaml:"network_threshold"`
	RelevanceThreshold    float64    `json:"relevance_threshold" yaml:"relevance_threshold"`
	AIConfidenceThreshold float64    `json:"ai_confidence_threshold" yaml:"ai_confidence_threshold"`
	DecayPerStep          float64    `json:"decay_per_step" yaml:"decay_per_step"`
	DeduplicationFields   []string   `json:"deduplication_fields" yaml:"deduplication_fields"`
}

func (cc chainConfigJSON) toModel() model.ChainConfig {
	steps := make([]model.Step, 0, len(cc.Steps))
	for _, s := range cc.Steps {
		steps = append(steps, s.toModel())
	}
	return model.ChainConfig{
		Type:                  model.ChainType(cc.Type),
		MaxDepth:              cc.MaxDepth,
		Steps:                 steps,
		OwnershipThresholdPct: cc.OwnershipThresholdPct,
		ClusterThreshold:      cc.ClusterThreshold,
		NetworkThreshold:      cc.NetworkThreshold,
		RelevanceThreshold:    cc.RelevanceThreshold,
		AIConfidenceThreshold: cc.AIConfidenceThreshold,
		DecayPerStep:          cc.DecayPerStep,
		DeduplicationFields:   cc.DeduplicationFields,
	}
}

type stepJSON struct {
	Action          string `json:"action" yaml:"action"`
	ActionType      string `json:"action_type" yaml:"action_type"`
	Condition       string `json:"condition,omitempty" yaml:"condition,omitempty"`
	OutputFields    []int  `json:"output_fields" yaml:"output_fields"`
	FallbackPattern string `json:"fallback_pattern,omitempty" yaml:"fallback_pattern,omitempty"`
}

func (s stepJSON) toModel() model.Step {
	return model.Step{
		Action:          s.Action,
		ActionType:      model.ActionType(s.ActionType),
		Condition:       s.Condition,
		OutputFields:    s.OutputFields,
		FallbackPattern: s.FallbackPattern,
	}
}

type playbookJSON struct {
	ID           string   `json:"id" yaml:"id"`
	Label        string   `json:"label" yaml:"label"`
	Rules        []string `json:"rules" yaml:"rules"`
	Jurisdiction string   `json:"jurisdiction,omitempty" yaml:"jurisdiction,omitempty"`
}

func (pb playbookJSON) toModel() model.Playbook {
	return model.Playbook{ID: pb.ID, Label: pb.Label, Rules: pb.Rules, Jurisdiction: pb.Jurisdiction}
}

type chainRuleJSON struct {
	ID          string          `json:"id" yaml:"id"`
	Label       string          `json:"label" yaml:"label"`
	ChainConfig chainConfigJSON `json:"chain_config" yaml:"chain_config"`
}

func (cr chainRuleJSON) toModel() model.ChainRule {
	return model.ChainRule{ID: cr.ID, Label: cr.Label, ChainConfig: cr.ChainConfig.toModel()}
}
