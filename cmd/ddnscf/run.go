package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Travis-Britz/ddns6"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch for network changes and keep the record up to date",
		Long: `Run checks the host's address once at startup and again after every network change
the OS reports, pushing to Cloudflare whenever the chosen address changes and auto-push is on.

It stops on SIGINT or SIGTERM once the check in progress has finished.`,
		Args: cobra.NoArgs,
		RunE: runDaemon,
	}
	cmd.Flags().String("listen", "", "Serve the homepage and status API on this address, e.g. :8080 (default is the configured homepage port, if any)")
	cmd.Flags().Duration("interval", 0, "Also check on this interval (minimum 1m; 0 relies on OS notifications)")
	for _, name := range []string{"listen", "interval"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", name, err))
		}
	}
	return cmd
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	resolver, err := newResolver()
	if err != nil {
		return err
	}
	ctrl, err := ddns.New(store,
		ddns.UsingCloudflare(),
		ddns.UsingResolver(resolver),
		ddns.UsingTokenStore(tokenStore()),
		ddns.WithLogger(libraryLogger()),
		ddns.UsingHTTPClient(httpClient()),
		ddns.WithPollInterval(viper.GetDuration("interval")),
		ddns.WithSnapshotHook(logSnapshot),
		ddns.WithNetworkChangedHook(func() {
			logger.Info("network configuration changed")
		}),
	)
	if err != nil {
		return fmt.Errorf("error creating controller: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := viper.GetString("listen")
	if port := ctrl.Snapshot().Settings.Homepage.WebPort; addr == "" && port != 0 {
		addr = net.JoinHostPort("", strconv.Itoa(int(port)))
	}
	if addr != "" {
		opts := []ddns.StatusHandlerOption{ddns.WithMiddlewares(loggingMiddleware)}
		if port, err := listenPort(addr); err == nil {
			opts = append(opts, ddns.WithHomepagePort(port))
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           ddns.NewStatusHandler(ctrl, opts...),
			ReadHeaderTimeout: readHeaderTimeout,
		}
		go func() {
			logger.Info("homepage and status API listening", zap.String("address", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status API stopped", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	logger.Info("starting", zap.String("settings", store.Path()))
	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

func listenPort(addr string) (uint16, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", port, err)
	}
	return uint16(p), nil
}

func logSnapshot(s ddns.Snapshot) {
	fields := []zap.Field{
		zap.String("address", s.CurrentIPv6),
		zap.String("status", string(s.Cache.LastSyncStatus.Kind)),
	}
	if s.Cache.LastSyncStatus.Message != "" {
		fields = append(fields, zap.String("message", s.Cache.LastSyncStatus.Message))
	}
	if s.Cache.LastSyncStatus.Kind == ddns.SyncError {
		logger.Warn("sync", fields...)
		return
	}
	logger.Debug("sync", fields...)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
