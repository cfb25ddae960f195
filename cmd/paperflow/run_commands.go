package main

import (
	"github.com/spf13/cobra"

	"paperflow/internal/domain"
)

func newHistoryCommand(flags *rootFlags) *cobra.Command {
	var (
		input       string
		offset      int64
		limitChunks int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Process a full historical snapshot",
		Long: "Process a JSON-lines snapshot in chunks. A run stopped early or failed " +
			"mid-stream can be resumed with --offset set to the summary's resume offset.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd, domain.RunModeHistory)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") {
				cfg.Input.Path = input
			}
			if cmd.Flags().Changed("offset") {
				cfg.Pipeline.StartPart = 0
				cfg.Pipeline.StartOffset = offset
			}
			if cmd.Flags().Changed("limit-chunks") {
				cfg.Pipeline.MaxChunks = limitChunks
			}
			return runPipeline(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Snapshot file path, or S3 key in remote mode")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Byte offset to start reading from")
	cmd.Flags().IntVar(&limitChunks, "limit-chunks", 0, "Stop after this many chunks (0 means no limit)")
	return cmd
}

func newDailyCommand(flags *rootFlags) *cobra.Command {
	var input, from, to string

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Process daily incremental dumps for a date range",
		Long: "Process every object under {input}/arXiv/{date}/ and {input}/arXivRaw/{date}/ " +
			"for each date in [from, to).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd, domain.RunModeDaily)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") {
				cfg.Input.Path = input
			}
			if cmd.Flags().Changed("from") {
				cfg.Input.FromDate = from
			}
			if cmd.Flags().Changed("to") {
				cfg.Input.ToDate = to
			}
			return runPipeline(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Root directory of the daily dumps, or S3 prefix in remote mode")
	cmd.Flags().StringVar(&from, "from", "", "First date to process (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Date after the last one to process (YYYY-MM-DD)")
	return cmd
}
