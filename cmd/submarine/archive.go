package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zadorian/submarine/internal/archiveproc"
	"github.com/zadorian/submarine/internal/model"
)

var archiveFlags struct {
	domains     []string
	schema      string
	filters     []string
	maxWATFiles int
	aggressive  bool
}

var archiveCmd = &cobra.Command{
	Use:   "archive <archive-id>",
	Short: "stream PageRecords from a Common Crawl archive's WAT index",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchive,
}

func init() {
	archiveCmd.Flags().StringSliceVar(&archiveFlags.domains, "domains", nil, "restrict to these domains")
	archiveCmd.Flags().StringVar(&archiveFlags.schema, "schema", "", "restrict to pages carrying this schema.org @type")
	archiveCmd.Flags().StringSliceVar(&archiveFlags.filters, "filter", nil, "repeatable key=value schema field filter, used with --schema")
	archiveCmd.Flags().IntVar(&archiveFlags.maxWATFiles, "max-wat-files", 0, "cap on WAT files fetched (0 = no cap)")
	archiveCmd.Flags().BoolVar(&archiveFlags.aggressive, "aggressive", false, "use the aggressive concurrency tier instead of the default")
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	proc := a.archiver
	if archiveFlags.aggressive {
		proc = archiveproc.New(archiveproc.AggressiveConfig(), a.bus, a.log)
	}

	var records <-chan model.PageRecord
	if archiveFlags.schema != "" {
		filters, err := parseFilterPairs(archiveFlags.filters)
		if err != nil {
			return err
		}
		records, err = proc.FetchBySchema(ctx, args[0], archiveFlags.schema, filters, archiveFlags.maxWATFiles)
		if err != nil {
			return err
		}
	} else {
		targets := map[string]struct{}{}
		for _, d := range archiveFlags.domains {
			targets[d] = struct{}{}
		}
		records, err = proc.FetchDomains(ctx, args[0], targets, archiveFlags.maxWATFiles)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	for rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func parseFilterPairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("--filter %q: expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
