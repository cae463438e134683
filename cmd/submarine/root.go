package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zadorian/submarine/internal/archiveproc"
	"github.com/zadorian/submarine/internal/chain"
	"github.com/zadorian/submarine/internal/deepdiver"
	"github.com/zadorian/submarine/internal/diveplanner"
	"github.com/zadorian/submarine/internal/entitystore"
	"github.com/zadorian/submarine/internal/eventbus"
	"github.com/zadorian/submarine/internal/logging"
	"github.com/zadorian/submarine/internal/periscope"
	"github.com/zadorian/submarine/internal/rules"
	"github.com/zadorian/submarine/internal/sonar"
	"github.com/zadorian/submarine/internal/sonarindex"
	"github.com/zadorian/submarine/internal/submarineconfig"
)

var cfgFile string

// RootCmd is the submarine command tree: plan, dive, archive and chain
// each correspond to one of the acquisition/execution subsystems.
var RootCmd = &cobra.Command{
	Use:   "submarine",
	Short: "archive-first OSINT acquisition and entity-graph construction",
	Long: `submarine drives Common Crawl discovery (Sonar + Periscope), WARC
acquisition (Dive Planner + Deep Diver, or the Parallel Archive
Processor for schema-filtered sweeps), entity extraction, and
recursive chain expansion from a single binary.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.submarine.yaml)")
	RootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	RootCmd.PersistentFlags().String("log-format", "text", "text or json")
	RootCmd.PersistentFlags().String("rules-dir", "./rules", "directory holding rules.json, chain_rules.json, playbooks.json, legend.json")
	RootCmd.PersistentFlags().String("redis-url", "", "optional redis address to mirror bus events onto (host:port)")
	RootCmd.PersistentFlags().String("redis-channel", "submarine:events", "pub/sub channel used by --redis-url")
	RootCmd.PersistentFlags().String("rule-executor-url", "", "base URL of the external rule-execution service")
	RootCmd.PersistentFlags().StringSlice("sonar-index", nil, "repeatable name=url pair registering an HTTP sonar.Index")
	RootCmd.PersistentFlags().String("couchdb-url", "", "CouchDB server URL; enables entity persistence when set")
	RootCmd.PersistentFlags().String("couchdb-user", "", "CouchDB basic-auth user")
	RootCmd.PersistentFlags().String("couchdb-password", "", "CouchDB basic-auth password")
	RootCmd.PersistentFlags().String("couchdb-db", "submarine_entities", "CouchDB database name")

	for _, name := range []string{
		"log-level", "log-format", "rules-dir", "redis-url", "redis-channel",
		"rule-executor-url", "sonar-index", "couchdb-url", "couchdb-user",
		"couchdb-password", "couchdb-db",
	} {
		viper.BindPFlag(name, RootCmd.PersistentFlags().Lookup(name))
	}

	RootCmd.AddCommand(planCmd, diveCmd, archiveCmd, chainCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".submarine")
	}

	viper.SetEnvPrefix("SUBMARINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// app bundles the collaborators every subcommand dispatches into,
// built once per invocation from viper-resolved flags/env/config.
type app struct {
	cfg      submarineconfig.Config
	log      *logrus.Entry
	bus      *eventbus.Bus
	registry *rules.Registry
	legend   *rules.Legend
	scanner  *sonar.Scanner
	planner  *diveplanner.Planner
	diver    *deepdiver.Diver
	archiver *archiveproc.Processor
	executor *chain.Executor
}

func newApp(ctx context.Context) (*app, error) {
	logLevel := logging.Level(viper.GetString("log-level"))
	log := logging.New(logging.Config{Level: logLevel, Format: viper.GetString("log-format"), Service: "submarine"})

	cfg := submarineconfig.Load()

	bus := eventbus.New(log)
	if redisURL := viper.GetString("redis-url"); redisURL != "" {
		mirror, err := newRedisMirror(redisURL, viper.GetString("redis-channel"))
		if err != nil {
			log.WithError(err).Warn("redis mirror disabled")
		} else {
			mirror.Attach(bus)
		}
	}

	registry, legend, err := rules.LoadDir(viper.GetString("rules-dir"))
	if err != nil {
		return nil, fmt.Errorf("loading rule tables: %w", err)
	}

	var indices []sonar.Index
	for _, pair := range viper.GetStringSlice("sonar-index") {
		name, url, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("--sonar-index %q: expected name=url", pair)
		}
		indices = append(indices, sonarindex.New(name, url, 15))
	}
	scanner := sonar.New(log, indices...)

	ccClient := periscope.New(periscope.DefaultRetryConfig())
	planner := diveplanner.New(scanner, ccClient, cfg, bus, log)

	fetcher := deepdiver.NewHTTPRangeFetcher(time.Duration(cfg.DiverTimeoutSeconds) * time.Second)
	diver := deepdiver.New(fetcher, cfg.DiverThreads, time.Duration(cfg.FetchTauMillis)*time.Millisecond, bus, log)

	archiver := archiveproc.New(archiveproc.Config{
		MaxDownloads:       cfg.WATMaxDownloads,
		ProcessConcurrency: cfg.WATProcessConcurrency,
	}, bus, log)

	var ruleExec chain.RuleExecutor
	if execURL := viper.GetString("rule-executor-url"); execURL != "" {
		ruleExec = ruleexecNew(execURL, log)
	}

	store, err := newEntityStore(ctx, log)
	if err != nil {
		return nil, err
	}

	executor := chain.New(registry, legend, ruleExec, store, bus, log)

	return &app{
		cfg: cfg, log: log, bus: bus,
		registry: registry, legend: legend,
		scanner: scanner, planner: planner, diver: diver,
		archiver: archiver, executor: executor,
	}, nil
}

func newEntityStore(ctx context.Context, log *logrus.Entry) (chain.Store, error) {
	url := viper.GetString("couchdb-url")
	if url == "" {
		return entitystore.NopStore{}, nil
	}
	store, err := entitystore.NewCouchStore(ctx, url, viper.GetString("couchdb-user"), viper.GetString("couchdb-password"), viper.GetString("couchdb-db"))
	if err != nil {
		return nil, fmt.Errorf("connecting to couchdb: %w", err)
	}
	log.Info("entity persistence enabled")
	return store, nil
}
