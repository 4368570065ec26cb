package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"landreg/internal/config"
	"landreg/internal/logging"
	"landreg/internal/merger"
	"landreg/internal/pipeline"
	"landreg/internal/registry"
	"landreg/internal/server"
	"landreg/internal/store"
	"landreg/internal/util"
)

type globalFlags struct {
	configPath string
	logLevel   string
	noHistory  bool
}

// app is what every subcommand needs, built once flags are parsed.
type app struct {
	cfg    *config.AppConfig
	logger zerolog.Logger
	store  *store.Store
	coord  *pipeline.Coordinator
}

func (a *app) Close() {
	a.coord.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close run history")
		}
	}
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	a := &app{
		cfg:    cfg,
		logger: logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr),
	}

	if !flags.noHistory {
		dataDir, err := config.EnsureDataDir(cfg)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to create data directory, run history disabled")
		} else if st, err := store.New(config.DatabasePath(dataDir)); err != nil {
			a.logger.Warn().Err(err).Msg("failed to open run history, continuing without it")
		} else {
			a.store = st
		}
	}

	a.coord = pipeline.NewCoordinator(cfg, a.store, a.logger)
	return a, nil
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "landreg",
		Short:         "Match properties against HM Land Registry Price Paid data and keep a master workbook",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.toml (default: next to the executable)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "trace, debug, info, warn or error")
	root.PersistentFlags().BoolVar(&flags.noHistory, "no-history", false, "do not record runs in the history database")

	root.AddCommand(
		newMatchCommand(flags),
		newMergeCommand(flags),
		newRunCommand(flags),
		newLookupCommand(flags),
		newServeCommand(flags),
		newRunsCommand(flags),
		newConfigCommand(flags),
	)
	return root
}

func newMatchCommand(flags *globalFlags) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Look up every property of the input workbook and write the matcher output",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if input != "" {
				a.cfg.Matcher.InputPath = input
			}
			if output != "" {
				a.cfg.Matcher.OutputPath = output
			}

			summary, err := a.coord.Match(cmd.Context(), nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d properties: %d matched, %d no match, %d errors -> %s\n",
				summary.Total, summary.Matched, summary.NoMatch, summary.Errors, summary.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input workbook (overrides config)")
	cmd.Flags().StringVar(&output, "output", "", "output workbook (overrides config)")
	return cmd
}

func newMergeCommand(flags *globalFlags) *cobra.Command {
	var source, target string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Upsert matched rows of the matcher output into the master workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if source != "" {
				a.cfg.Merger.SourcePath = source
			}
			if target != "" {
				a.cfg.Merger.TargetPath = target
			}
			return runMerge(cmd, a)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "matcher output workbook (overrides config)")
	cmd.Flags().StringVar(&target, "target", "", "master workbook (overrides config)")
	return cmd
}

func runMerge(cmd *cobra.Command, a *app) error {
	summary, err := a.coord.Merge(cmd.Context())
	if errors.Is(err, merger.ErrSourceMissing) {
		// nothing to merge; reported, master untouched
		fmt.Fprintf(cmd.ErrOrStderr(), "Source file not found: %s\n", a.cfg.Merger.SourcePath)
		return nil
	}
	if err != nil {
		return err
	}
	if !summary.Written {
		fmt.Fprintln(cmd.OutOrStdout(), "No matched records found. Nothing to process.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d matched rows: %d inserted, %d updated, %d total -> %s\n",
		summary.Eligible, summary.Inserted, summary.Updated, summary.Total, a.cfg.Merger.TargetPath)
	return nil
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Match, then merge the fresh output into the master workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.coord.Match(cmd.Context(), nil)
			if err != nil {
				return err
			}
			// merge what the matcher just wrote
			a.cfg.Merger.SourcePath = summary.OutputPath
			a.cfg.Merger.SourceSheet = a.cfg.Matcher.OutputSheet
			return runMerge(cmd, a)
		},
	}
}

func newLookupCommand(flags *globalFlags) *cobra.Command {
	var postcode, door string
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Print every recorded sale for one address, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.noHistory = true
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.coord.Lookup(cmd.Context(), postcode, door)
			if err != nil {
				return err
			}
			if len(results) > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), registry.FormatAddress(results[0]))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().StringVar(&postcode, "postcode", "", "postcode, any spacing")
	cmd.Flags().StringVar(&door, "door", "", "door number (PAON)")
	_ = cmd.MarkFlagRequired("postcode")
	_ = cmd.MarkFlagRequired("door")
	return cmd
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var (
		port int
		open bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if port > 0 {
				a.cfg.Server.Port = port
			}
			srv := server.NewServer(a.coord, a.store, a.logger, a.cfg.Server.DevMode)
			addr := fmt.Sprintf(":%d", a.cfg.Server.Port)

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			a.logger.Info().Str("addr", addr).Msg("listening")

			if open && !a.cfg.Server.DevMode {
				url := util.StatusURL(a.cfg.Server.Port)
				if err := util.OpenBrowser(url); err != nil {
					a.logger.Warn().Err(err).Str("url", url).Msg("could not open browser")
				}
			}

			return srv.Serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().BoolVar(&open, "open", false, "open the status page in a browser")
	return cmd
}

func newRunsCommand(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent match and merge runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.store == nil {
				return errors.New("run history is not available")
			}
			runs, err := a.store.ListRuns(limit)
			if err != nil {
				return err
			}

			table := tablewriter.NewTable(cmd.OutOrStdout())
			table.Header("Started", "Kind", "Status", "Rows", "Matched", "Errors", "ID")
			for _, r := range runs {
				err := table.Append(
					r.StartedAt.Local().Format("2006-01-02 15:04"), string(r.Kind), string(r.Status),
					r.TotalRows, r.MatchedRows, r.ErrorRows, r.ID,
				)
				if err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func newConfigCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage config.toml",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config.toml with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
