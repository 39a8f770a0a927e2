package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"sismed/internal/config"
	"sismed/internal/console"
	"sismed/internal/handler"
	"sismed/internal/hub"
	"sismed/internal/watcher"

	"github.com/spf13/cobra"
)

// withApp runs fn against a freshly wired app and closes it afterwards
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd(opts *globalOptions) *cobra.Command {
	var addr, watchCatalog string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if addr != "" {
					a.cfg.Server.Addr = addr
				}
				return runServer(ctx, a, watchCatalog)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	cmd.Flags().StringVar(&watchCatalog, "watch-catalog", "", "import this catalog file (yaml or json) whenever it changes")
	return cmd
}

func runServer(ctx context.Context, a *app, watchCatalog string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sseHub := hub.New(a.log)
	go sseHub.Run(ctx)
	go sseHub.Forward(ctx, a.bus)

	if watchCatalog != "" {
		w := watcher.New(watchCatalog, func(ctx context.Context) {
			importCatalogFile(ctx, a, watchCatalog)
		}, a.log)
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Str("path", watchCatalog).Msg("catalog watch stopped")
			}
		}()
	}

	e := handler.New(handler.Config{CORSOrigins: a.cfg.Server.CORSOrigins}, handler.Deps{
		Facade:   a.facade,
		Services: a.services,
		Events:   sseHub,
		Metrics:  a.metrics,
		Log:      a.log,
	})

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Server.Addr).Str("database", a.repo.Path()).Msg("starting server")
		if err := e.Start(a.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.log.Info().Msg("server stopped")
	return nil
}

// importCatalogFile imports path, choosing the format from its extension
func importCatalogFile(ctx context.Context, a *app, path string) {
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	f, err := os.Open(path)
	if err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("catalog file unreadable")
		return
	}
	defer f.Close()
	if _, err := a.services.Catalog.Import(ctx, format, f); err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("catalog import failed")
	}
}

func initCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and create the seeded store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			found := opts.configPath != "" || config.FindConfigPath() != ""

			// the store must open before any config is written
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				counts, err := a.services.Records.Counts(ctx)
				if err != nil {
					return err
				}
				if found {
					fmt.Fprintf(out, "config %s\n", a.cfgPath)
				} else {
					path := config.DefaultConfigPath()
					cfg := config.DefaultConfig()
					if opts.dbPath != "" {
						cfg.Database.Path = opts.dbPath
					}
					if err := cfg.Save(path); err != nil {
						return err
					}
					fmt.Fprintf(out, "wrote config %s\n", path)
				}
				fmt.Fprintf(out, "database %s\n", a.repo.Path())
				fmt.Fprintf(out, "%d medicines, %d posologies, %d patients\n",
					counts.Medicines, counts.Posologies, counts.Patients)
				return nil
			})
		},
	}
}

func backupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup DEST",
		Short: "Copy the store to a file, directory or s3://bucket/key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				location, err := a.services.Backups.Backup(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), location)
				return nil
			})
		},
	}
}

func restoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore SRC",
		Short: "Replace the store with a backup from a file or s3://bucket/key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				msg, err := a.services.Backups.Restore(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
}

func catalogCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Export or import the medicine and posology catalog",
	}
	cmd.PersistentFlags().StringVarP(&format, "format", "f", "yaml", "catalog format: yaml or json")

	export := &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write the catalog to FILE or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				w := cmd.OutOrStdout()
				if len(args) == 1 {
					f, err := os.Create(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return a.services.Catalog.Export(ctx, format, w)
			})
		},
	}

	imp := &cobra.Command{
		Use:   "import [FILE]",
		Short: "Add catalog entries from FILE or stdin; existing entries are kept",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var r io.Reader = cmd.InOrStdin()
				if len(args) == 1 {
					f, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				result, err := a.services.Catalog.Import(ctx, format, r)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d medicines, %d posologies\n",
					result.MedicinesInserted, result.PosologiesInserted)
				return nil
			})
		},
	}

	cmd.AddCommand(export, imp)
	return cmd
}

func invokeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke COMMAND [JSON]",
		Short: "Run one facade command and print its result as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var raw json.RawMessage
				if len(args) == 2 {
					raw = json.RawMessage(strings.TrimSpace(args[1]))
				}
				result, err := a.facade.Invoke(ctx, args[0], raw)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			})
		},
	}
}

func shellCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive command shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return console.New(a.facade, cmd.OutOrStdout(), console.HistoryFile()).Run(ctx)
			})
		},
	}
}
