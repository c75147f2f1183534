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
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sheettracker/api/internal/app"
	"sheettracker/api/internal/client"
	"sheettracker/api/internal/config"
	"sheettracker/api/internal/export"
	"sheettracker/api/internal/logging"
	"sheettracker/api/internal/search"
	"sheettracker/api/internal/sheet"
)

var (
	cfgFile string
	cfg     config.Config
	log     zerolog.Logger
	logSink io.Closer
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetd",
		Short:         "Question sheet tracker server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			log, logSink, err = logging.New(cfg.Log, os.Stderr)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logSink != nil {
				_ = logSink.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/sheetd/config.yaml)")
	root.AddCommand(serveCmd(), importCmd(), exportCmd(), historyCmd())
	return root
}

// stack is everything the commands share once storage is open.
type stack struct {
	backend *backend
	store   *sheet.Store
	search  *search.Service
	meili   *search.Meili
	checks  map[string]app.Pinger
}

func (rt *stack) Close() {
	if rt.search != nil {
		rt.search.Wait()
	}
	if rt.meili != nil {
		rt.meili.Close()
	}
	rt.backend.Close()
}

func openStack(ctx context.Context, withIndex bool) (*stack, error) {
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rt := &stack{backend: b, checks: b.checks}

	opts := []sheet.Option{sheet.WithLogger(log)}
	if cfg.SeedPath != "" {
		seed, err := os.ReadFile(cfg.SeedPath)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("read seed: %w", err)
		}
		opts = append(opts, sheet.WithSeed(seed))
	}
	if cfg.MirrorURL != "" {
		mirror := client.New(cfg.MirrorURL, cfg.MirrorTimeout)
		opts = append(opts, sheet.WithMirror(mirror))
		rt.checks["mirror"] = mirror
		log.Info().Str("url", cfg.MirrorURL).Msg("mirroring mutations to remote sheet")
	}

	var index search.Index
	if withIndex && cfg.Meili.URL != "" {
		rt.meili = search.NewMeili(cfg.Meili.URL, cfg.Meili.MasterKey, log)
		index = rt.meili
	}
	rt.search = search.NewService(index, log)
	opts = append(opts, sheet.WithCommitHook(rt.search.Observe))

	rt.store, err = sheet.Open(ctx, b.persister, opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if index != nil {
		rt.search.Reindex(rt.store.Sheet())
	}
	return rt, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openStack(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			service := app.NewService(rt.store, app.Options{
				Search:  rt.search,
				History: rt.backend.history,
				Checks:  rt.checks,
				Logger:  log,
			})
			httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
			server := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpServer.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Str("backend", cfg.Backend).Msg("sheet API listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-sigCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown error")
			}
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the stored sheet with a raw import payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rt, err := openStack(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.Close()

			sh, err := rt.store.Reset(cmd.Context(), raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d topics, %d questions\n", len(sh.Topics), sh.QuestionCount())
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a progress report as html, pdf or docx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			rt, err := openStack(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := export.NewService().Export(cmd.Context(), rt.store.Sheet(), f)
			if err != nil {
				return err
			}
			if out == "" {
				out = result.Filename
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(out, result.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(result.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "html", "output format: html, pdf or docx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: derived from the sheet name)")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved versions (git and postgres backends)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openStack(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.backend.history == nil {
				return fmt.Errorf("backend %q keeps no history", cfg.Backend)
			}
			entries, err := rt.backend.history.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of versions to list")
	return cmd
}
