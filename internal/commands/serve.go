package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/quotawatch/internal/api"
	"github.com/opensource-finance/quotawatch/internal/bus"
	"github.com/opensource-finance/quotawatch/internal/cache"
	"github.com/opensource-finance/quotawatch/internal/domain"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve flagged expenses, reports and run history over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), cmd.OutOrStdout(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")

	return cmd
}

func (a *app) serve(ctx context.Context, out io.Writer, port int) error {
	cfg := a.cfg
	if port > 0 {
		cfg.Server.Port = port
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	slog.Info("store initialized", "driver", cfg.Store.Driver)

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer c.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	b, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initializing event bus: %w", err)
	}
	defer b.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	server := api.NewServer(cfg.Server, api.Deps{
		Store:      st,
		Source:     a.source(),
		Cache:      c,
		ReportsDir: cfg.Paths.ReportsDir,
		CacheTTL:   cfg.Cache.LocalTTL,
		Version:    a.info.Version,
	})

	sub, err := server.Handler().WatchAudits(ctx, b)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", domain.TopicEntityAudited, err)
	}
	defer sub.Unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	printBanner(out, cfg, a.info.Version)
	slog.Info("quotawatch is ready",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"version", a.info.Version,
	)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("quotawatch shutdown complete")
	return nil
}

func printBanner(w io.Writer, cfg *domain.Config, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  quotawatch: expense claim auditor")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", version)
	fmt.Fprintf(w, "  Store:    %s\n", cfg.Store.Driver)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintln(w, "    GET /entities                       - List audited entities")
	fmt.Fprintln(w, "    GET /entities/{id}/flagged          - Flagged expenses (?from=&to=&where=)")
	fmt.Fprintln(w, "    GET /reports/{date}/{period}        - Summary and critical tables")
	fmt.Fprintln(w, "    GET /reports/{date}/{period}/data   - Top entities, suppliers and expenses")
	fmt.Fprintln(w, "    GET /runs                           - Audit run history")
	fmt.Fprintln(w, "    GET /health                         - Health check")
	fmt.Fprintln(w)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quotawatch %s (commit: %s, built: %s)\n", a.info.Version, a.info.Commit, a.info.Date)
		},
	}
}
