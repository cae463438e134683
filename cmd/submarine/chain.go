package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zadorian/submarine/internal/chain"
	"github.com/zadorian/submarine/internal/orderstring"
)

var chainFlags struct {
	seedType     string
	jurisdiction string
}

var chainCmd = &cobra.Command{
	Use:   "chain <chain-rule-id> <seed-or-order-string>",
	Short: "run a recursive chain strategy from a chain_rules.json entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runChain,
}

func init() {
	chainCmd.Flags().StringVar(&chainFlags.seedType, "seed-type", "", "seed entity type (email, phone, domain, company, person, ...)")
	chainCmd.Flags().StringVar(&chainFlags.jurisdiction, "jurisdiction", "", "jurisdiction code, used by playbook-cascade and multi-jurisdiction strategies")
}

func runChain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	chainRule, ok := a.registry.GetChainRule(args[0])
	if !ok {
		return fmt.Errorf("no chain rule %q in the loaded rule tables", args[0])
	}

	order := orderstring.Parse(args[1])
	seedValue := order.Query
	if seedValue == "" {
		seedValue = args[1]
	}

	jurisdiction := chainFlags.jurisdiction
	if jurisdiction == "" {
		jurisdiction = order.Jurisdiction
	}

	result, err := a.executor.ExecuteChain(ctx, chainRule, chain.Seed{Value: seedValue, Type: chainFlags.seedType}, jurisdiction)
	if err != nil {
		return err
	}
	return printJSON(result)
}
