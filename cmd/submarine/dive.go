package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zadorian/submarine/internal/deepdiver"
	"github.com/zadorian/submarine/internal/extractor"
	"github.com/zadorian/submarine/internal/model"
)

var diveFlags struct {
	planFile   string
	resume     string
	checkpoint string
	extract    bool
}

var diveCmd = &cobra.Command{
	Use:   "dive",
	Short: "fetch WARC byte ranges for a DivePlan and stream PageRecords",
	RunE:  runDive,
}

func init() {
	diveCmd.Flags().StringVar(&diveFlags.planFile, "plan-file", "", "DivePlan JSON produced by 'submarine plan --write-plan'")
	diveCmd.Flags().StringVar(&diveFlags.resume, "resume", "", "resume from a checkpoint file instead of --plan-file")
	diveCmd.Flags().StringVar(&diveFlags.checkpoint, "checkpoint", "", "write progress to this path as the dive proceeds")
	diveCmd.Flags().BoolVar(&diveFlags.extract, "extract", false, "run entity extraction over each fetched page instead of printing the raw record")
}

func runDive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	var plan *model.DivePlan
	switch {
	case diveFlags.resume != "":
		plan, err = deepdiver.ReadCheckpoint(diveFlags.resume)
	case diveFlags.planFile != "":
		plan, err = loadPlanFile(diveFlags.planFile)
	default:
		return fmt.Errorf("one of --plan-file or --resume is required")
	}
	if err != nil {
		return err
	}

	records, err := a.diver.ExecutePlan(ctx, plan, diveFlags.checkpoint)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for rec := range records {
		if !diveFlags.extract {
			if err := enc.Encode(rec); err != nil {
				return err
			}
			continue
		}
		result := extractor.Extract(rec.Content, rec.URL, rec.Domain)
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}

func loadPlanFile(path string) (*model.DivePlan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var plan model.DivePlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decoding plan file: %w", err)
	}
	return &plan, nil
}
