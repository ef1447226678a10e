package main

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/cascade"
	"github.com/ironsheep/rollcount/internal/config"
	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/learned"
	"github.com/ironsheep/rollcount/internal/logging"
	"github.com/ironsheep/rollcount/internal/metrics"
	"github.com/ironsheep/rollcount/internal/palette"
	"github.com/ironsheep/rollcount/internal/reconcile"
	"github.com/ironsheep/rollcount/internal/store"
)

// app holds what every subcommand shares: configuration, logger and
// metrics, plus whatever needs closing when the command ends.
type app struct {
	configFile string
	envFile    string
	logLevel   string

	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	closers  []func() error
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "rollcount",
		Short:         "Count and color-classify thread rolls in rack photos",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
		// The bare command is the MCP server, which is how MCP clients
		// launch it.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, a, "")
		},
	}

	root.SetVersionTemplate(versionText())

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: rollcount.yaml in . or $HOME/.config/rollcount)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(
		serveCommand(a),
		detectCommand(a),
		reconcileCommand(a),
		exportCommand(a),
		statsCommand(a),
		versionCommand(),
	)
	return root
}

// setup loads the configuration and builds the logger and metrics.
func (a *app) setup() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	a.log, err = logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		// Sync fails on stderr for some terminals; nothing to do about it.
		_ = a.log.Sync()
		return nil
	})

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics, err = metrics.New(a.registry)
	return err
}

// close runs the closers in reverse order.
func (a *app) close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

func (a *app) classifier() (*palette.Classifier, error) {
	return palette.New(a.cfg.Palette)
}

// cascade builds the detection cascade. The learned detector is left out
// when disabled.
func (a *app) cascade() (*cascade.Cascade, *palette.Classifier, error) {
	classifier, err := a.classifier()
	if err != nil {
		return nil, nil, err
	}
	circular, err := detection.NewCircleDetector(a.cfg.Circle, a.log)
	if err != nil {
		return nil, nil, err
	}
	grid, err := detection.NewGridDetector(a.cfg.Grid, classifier, a.log)
	if err != nil {
		return nil, nil, err
	}

	var model cascade.Detector
	if a.cfg.Learned.Enabled {
		d, err := learned.New(a.cfg.Learned, a.log, learned.WithMetrics(a.metrics))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, d.Close)
		model = d
	}

	c, err := cascade.New(a.cfg.Cascade, classifier, cascade.Standard(model, circular, grid),
		cascade.WithLogger(a.log), cascade.WithMetrics(a.metrics))
	if err != nil {
		return nil, nil, err
	}
	return c, classifier, nil
}

func (a *app) reconciler() (*reconcile.Reconciler, error) {
	return reconcile.New(a.cfg.Reconcile, a.log, reconcile.WithMetrics(a.metrics))
}

func (a *app) store() (*store.Store, error) {
	st, err := store.Open(a.cfg.Store, a.log)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	a.closers = append(a.closers, st.Close)
	return st, nil
}
