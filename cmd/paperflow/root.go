package main

import (
	"strings"

	"github.com/spf13/cobra"

	"paperflow/internal/config"
	"paperflow/internal/domain"
)

type rootFlags struct {
	configPath  string
	chunkSize   int
	workers     int
	inputLocal  bool
	outputLocal bool
	output      string
	format      string
	state       string
	metricsAddr string
	logLevel    string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "paperflow",
		Short:         "Reconcile arXiv metadata into partitioned paper records",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	pf.IntVar(&flags.chunkSize, "chunk-size", 0, "Records per chunk")
	pf.IntVar(&flags.workers, "workers", 0, "Chunks processed in parallel")
	pf.BoolVar(&flags.inputLocal, "input-local", true, "Read input from the local filesystem instead of S3")
	pf.BoolVar(&flags.outputLocal, "output-local", true, "Write output to the local filesystem instead of S3")
	pf.StringVar(&flags.output, "output", "", "Output directory, or key prefix for S3")
	pf.StringVar(&flags.format, "format", "", "Output format: parquet, jsonl or csv")
	pf.StringVar(&flags.state, "state", "", "Prior-state backend: memory, sqlite or postgres")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics and run status on this address")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level")

	rootCmd.AddCommand(newHistoryCommand(flags))
	rootCmd.AddCommand(newDailyCommand(flags))

	return rootCmd
}

// loadConfig reads the configuration and applies flags the user set
// explicitly.
func (f *rootFlags) loadConfig(cmd *cobra.Command, mode domain.RunMode) (*config.Config, error) {
	cfg, err := config.Load(strings.TrimSpace(f.configPath))
	if err != nil {
		return nil, err
	}
	cfg.Pipeline.Mode = mode

	changed := cmd.Flags().Changed
	if changed("chunk-size") {
		cfg.Pipeline.ChunkSize = f.chunkSize
	}
	if changed("workers") {
		cfg.Pipeline.Workers = f.workers
	}
	if changed("input-local") {
		cfg.Input.Locality = locality(f.inputLocal)
	}
	if changed("output-local") {
		cfg.Output.Locality = locality(f.outputLocal)
	}
	if changed("output") {
		cfg.Output.Path = f.output
	}
	if changed("format") {
		cfg.Output.Format = domain.OutputFormat(strings.ToLower(f.format))
	}
	if changed("state") {
		cfg.State.Backend = domain.StateBackend(strings.ToLower(f.state))
	}
	if changed("metrics-addr") {
		cfg.Metrics.ListenAddr = f.metricsAddr
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

func locality(local bool) domain.Locality {
	if local {
		return domain.LocalityLocal
	}
	return domain.LocalityRemote
}
