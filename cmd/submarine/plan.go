package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zadorian/submarine/internal/diveplanner"
	"github.com/zadorian/submarine/internal/model"
	"github.com/zadorian/submarine/internal/orderstring"
)

var planFlags struct {
	domains    []string
	allow      []string
	deny       []string
	urlContain string
	noFallback bool
	full       bool
	writePlan  string
}

var planCmd = &cobra.Command{
	Use:   "plan <query-or-order-string>",
	Short: "build a DivePlan from a Sonar/CC discovery query",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringSliceVar(&planFlags.domains, "domains", nil, "skip discovery, plan these domains directly")
	planCmd.Flags().StringSliceVar(&planFlags.allow, "allow", nil, "domain allowlist suffix match")
	planCmd.Flags().StringSliceVar(&planFlags.deny, "deny", nil, "domain denylist suffix match")
	planCmd.Flags().StringVar(&planFlags.urlContain, "url-contains", "", "restrict the CC keyword fallback to URLs containing this substring")
	planCmd.Flags().BoolVar(&planFlags.noFallback, "no-cc-fallback", false, "disable the CC keyword fallback when discovery finds nothing")
	planCmd.Flags().BoolVar(&planFlags.full, "full", false, "print the full plan instead of its summary")
	planCmd.Flags().StringVar(&planFlags.writePlan, "write-plan", "", "also write the full plan as JSON to this path, for a later dive")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	order := orderstring.Parse(args[0])
	opts := diveplanner.Options{
		CCArchives:               order.Archives,
		FilterStatus:             deref(order.StatusCode),
		FilterMIME:               order.MIME,
		FilterLanguage:           order.Language,
		FromTS:                   order.From,
		ToTS:                     order.To,
		DomainAllowlist:          planFlags.allow,
		DomainDenylist:           planFlags.deny,
		TLDInclude:               order.TLDInclude,
		TLDExclude:               order.TLDExclude,
		URLContains:              planFlags.urlContain,
		DisableCCKeywordFallback: planFlags.noFallback,
	}
	if order.Expanse != nil {
		opts.MaxDomains = *order.Expanse
	}
	if order.Depth != nil {
		opts.MaxPagesPerDomain = *order.Depth
	}

	var plan *model.DivePlan
	if len(planFlags.domains) > 0 {
		plan, err = a.planner.CreatePlanFromDomains(ctx, order.Query, planFlags.domains, opts)
	} else {
		query := order.Query
		if query == "" {
			query = strings.TrimSpace(args[0])
		}
		plan, err = a.planner.CreatePlan(ctx, query, opts)
	}
	if err != nil {
		return err
	}

	if planFlags.writePlan != "" {
		raw, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(planFlags.writePlan, raw, 0o644); err != nil {
			return fmt.Errorf("writing plan file: %w", err)
		}
	}

	if planFlags.full {
		return printJSON(plan)
	}
	return printJSON(diveplanner.Summarize(plan))
}

func deref(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
