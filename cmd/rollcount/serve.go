package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/ocr"
	"github.com/ironsheep/rollcount/internal/server"
)

func serveCommand(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Long: `Run the MCP (Model Context Protocol) server. Requests are read from stdin
one JSON-RPC message per line and responses written to stdout; logs go to
stderr. Configure it in your MCP client as the rollcount command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, a, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, a *app, metricsAddr string) error {
	ctx := cmd.Context()

	pipeline, classifier, err := a.cascade()
	if err != nil {
		return err
	}
	reconciler, err := a.reconciler()
	if err != nil {
		return err
	}
	st, err := a.store()
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(a.log),
		server.WithClassifier(classifier),
		server.WithReconciler(reconciler),
		server.WithStore(st),
		server.WithClassMode(a.cfg.Export.ClassMode),
	}
	reader, err := ocr.NewReader(a.cfg.OCR, a.log)
	if err != nil {
		a.log.Warn("label reading disabled", zap.Error(err))
	} else {
		a.closers = append(a.closers, reader.Close)
		opts = append(opts, server.WithOCR(reader))
	}

	server.Version = Version
	srv, err := server.New(a.cfg.Server, pipeline, opts...)
	if err != nil {
		return err
	}

	if metricsAddr == "" {
		metricsAddr = a.cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		stop, err := a.serveMetrics(metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	a.log.Info("MCP server ready",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit))
	return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// serveMetrics exposes the registry on addr until the returned function
// is called.
func (a *app) serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen for metrics on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(ctx)
	}, nil
}
