package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"riskaccept/internal/acceptance/export"
	"riskaccept/internal/acceptance/models"
	"riskaccept/internal/app"
	"riskaccept/internal/platform/config"
	"riskaccept/internal/platform/logger"
	id "riskaccept/pkg/domain"
)

// withApp loads configuration, builds the process and hands it to fn.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a, err := app.Build(ctx, cfg, logger.New(cfg.Logging))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Risk acceptance maintenance commands",
		SilenceUsage: true,
	}
	root.AddCommand(newSweepCmd(), newExportCmd(), newTokenCmd())
	return root
}

func newSweepCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire approved acceptances whose review date has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := models.ParseDate("at", at)
				if err != nil {
					return err
				}
				now = t
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Expiry.Tick(cmd.Context(), now)
				if err != nil {
					return err
				}
				if _, err := a.Relay.Drain(cmd.Context()); err != nil {
					a.Logger.WarnContext(cmd.Context(), "events left for the relay", "error", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d expired=%d skipped=%d failed=%d\n",
					report.Candidates, report.Expired, report.Skipped, report.Failed)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this date (YYYY-MM-DD) instead of now")
	return cmd
}

func newExportCmd() *cobra.Command {
	var format, out, status string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the acceptance register as CSV or XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			render, err := renderer(format)
			if err != nil {
				return err
			}
			var filter models.Filter
			if status != "" {
				st, err := models.ParseStatus(strings.ToUpper(status))
				if err != nil {
					return err
				}
				filter.Status = &st
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				views, err := a.Service.ListViews(cmd.Context(), filter)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return render(w, views)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&status, "status", "", "only export acceptances in this status")
	return cmd
}

func renderer(format string) (func(io.Writer, []*models.View) error, error) {
	switch strings.ToLower(format) {
	case "csv":
		return export.WriteCSV, nil
	case "xlsx":
		return export.WriteXLSX, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func newTokenCmd() *cobra.Command {
	var user string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an actor token signed with the configured key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := id.ParseUserID(user)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			token, err := app.NewTokenService(cfg).GenerateAccessToken(userID, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "acting user id")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
