package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/fishy/internal/app"
	"github.com/okian/fishy/internal/app/ingest"
	"github.com/okian/fishy/internal/bootstrap"
	"github.com/okian/fishy/internal/config"
	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/internal/loadtest"
	"github.com/okian/fishy/pkg/logger"
)

var errRefreshFailed = errors.New("one or more lists kept their previous cache")

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:          "fishctl",
		Short:        "Operate a fishy deployment",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if configFile != "" {
				return os.Setenv(config.EnvConfig, configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides "+config.EnvConfig+")")

	root.AddCommand(newRefreshCmd(), newCooldownCmd(), newLoadtestCmd())
	return root
}

// withRuntime loads configuration, builds the runtime without starting
// background refreshes and hands the service to fn.
func withRuntime(ctx context.Context, fn func(*service.Service) error) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := bootstrap.InitLogger(ctx, cfg); err != nil {
		return err
	}
	rt, err := bootstrap.Build(ctx, cfg, service.WithRefreshOnStart(false))
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Get().Error(ctx, "closing runtime failed", logger.Error(err))
		}
	}()
	return fn(rt.Service)
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [list]",
		Short: "Refresh one list or every list into the configured store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, func(svc *service.Service) error {
				var results []ingest.ListResult
				if len(args) == 1 {
					res, err := svc.RefreshList(ctx, args[0])
					if err != nil {
						return err
					}
					results = []ingest.ListResult{res}
				} else {
					rep, err := svc.RefreshAll(ctx)
					if err != nil {
						return err
					}
					results = rep.Lists
				}
				rep := refreshReport(results)
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
				for _, l := range rep.Lists {
					if l.Kept {
						return errRefreshFailed
					}
				}
				return nil
			})
		},
	}
}

func refreshReport(results []ingest.ListResult) types.RefreshReport {
	rep := types.RefreshReport{Lists: make([]types.ListRefresh, 0, len(results))}
	for _, res := range results {
		lr := types.ListRefresh{ListID: res.ListID, Items: res.Items, Kept: res.Kept}
		if res.Err != nil {
			lr.Error = ingest.FailureReason(res.Err)
		}
		rep.Lists = append(rep.Lists, lr)
	}
	return rep
}

func newCooldownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Inspect or clear a user's cooldown",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check USER ACTION",
			Short: "Show whether USER may perform ACTION now",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				return withRuntime(ctx, func(svc *service.Service) error {
					cd, err := svc.CheckCooldown(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), cd)
				})
			},
		},
		&cobra.Command{
			Use:   "clear USER ACTION",
			Short: "Drop USER's window for ACTION (e.g. draw-aredl, command:draw)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				return withRuntime(ctx, func(svc *service.Service) error {
					if err := svc.ClearCooldown(ctx, args[0], args[1]); err != nil {
						return err
					}
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "cleared %s for %s\n", args[1], args[0])
					return err
				})
			},
		},
	)
	return cmd
}

func newLoadtestCmd() *cobra.Command {
	cfg := loadtest.Config{}
	var logFormat string
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Fire concurrent draws at a running server and verify the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			stats, err := loadtest.Run(cmd.Context(), &cfg)
			if stats != nil {
				if perr := printJSON(cmd.OutOrStdout(), stats); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "Base URL of the service")
	f.StringVar(&cfg.List, "list", "", "List to draw from")
	f.IntVar(&cfg.Users, "users", loadtest.DefaultUsers, "Number of distinct users")
	f.IntVar(&cfg.Repeat, "repeat", loadtest.DefaultRepeat, "Extra draws per user that must hit the cooldown")
	f.IntVar(&cfg.TopN, "top", loadtest.DefaultTopN, "Leaderboard entries to fetch")
	f.IntVar(&cfg.Workers, "workers", loadtest.DefaultWorkers, "Concurrent workers")
	f.DurationVar(&cfg.Timeout, "timeout", loadtest.DefaultTimeout, "HTTP request timeout")
	f.StringVar(&cfg.UserPrefix, "prefix", loadtest.DefaultUserPrefix, "Prefix for generated user ids")
	f.StringVar(&cfg.OutputFile, "output", "", "Write the JSON report to this file")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log progress")
	f.StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	_ = cmd.MarkFlagRequired("list")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
