package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/ironsheep/rollcount/internal/cascade"
	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/export"
	"github.com/ironsheep/rollcount/internal/learned"
	"github.com/ironsheep/rollcount/internal/logging"
	"github.com/ironsheep/rollcount/internal/ocr"
	"github.com/ironsheep/rollcount/internal/palette"
	"github.com/ironsheep/rollcount/internal/reconcile"
	"github.com/ironsheep/rollcount/internal/server"
	"github.com/ironsheep/rollcount/internal/store"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ROLLCOUNT"

	// FileName is the config file name searched for without an extension.
	FileName = "rollcount"
)

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `mapstructure:"addr"`
}

// ExportConfig holds training export settings.
type ExportConfig struct {
	ClassMode export.ClassMode `mapstructure:"class_mode"`
}

// Config is the complete rollcount configuration.
type Config struct {
	Logging   logging.Config         `mapstructure:"logging"`
	Palette   palette.Config         `mapstructure:"palette"`
	Circle    detection.CircleConfig `mapstructure:"circle"`
	Grid      detection.GridConfig   `mapstructure:"grid"`
	Learned   learned.Config         `mapstructure:"learned"`
	Cascade   cascade.Config         `mapstructure:"cascade"`
	Reconcile reconcile.Config       `mapstructure:"reconcile"`
	Store     store.Config           `mapstructure:"store"`
	OCR       ocr.Config             `mapstructure:"ocr"`
	Server    server.Config          `mapstructure:"server"`
	Metrics   MetricsConfig          `mapstructure:"metrics"`
	Export    ExportConfig           `mapstructure:"export"`
}

// Default returns every component's defaults.
func Default() Config {
	return Config{
		Logging:   logging.DefaultConfig(),
		Palette:   palette.DefaultConfig(),
		Circle:    detection.DefaultCircleConfig(),
		Grid:      detection.DefaultGridConfig(),
		Learned:   learned.DefaultConfig(),
		Cascade:   cascade.DefaultConfig(),
		Reconcile: reconcile.DefaultConfig(),
		Store:     store.DefaultConfig(),
		OCR:       ocr.DefaultConfig(),
		Server:    server.DefaultConfig(),
		Export:    ExportConfig{ClassMode: export.ClassSingle},
	}
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var err error
	add := func(section string, e error) {
		if e != nil {
			err = multierr.Append(err, errors.Wrap(e, section))
		}
	}

	_, lerr := logging.NewLoggerConfig(c.Logging)
	add("logging", lerr)
	add("palette", c.Palette.Validate())
	add("circle", c.Circle.Validate())
	add("grid", c.Grid.Validate())
	add("learned", c.Learned.Validate())
	add("cascade", c.Cascade.Validate())
	add("reconcile", c.Reconcile.Validate())
	add("ocr", c.OCR.Validate())
	add("server", c.Server.Validate())
	if c.Store.Path == "" {
		add("store", errors.New("path is empty"))
	}
	if !c.Export.ClassMode.Valid() {
		add("export", errors.Errorf("unknown class mode %q", c.Export.ClassMode))
	}
	return err
}

// SearchPaths returns the directories searched for rollcount.yaml when no
// file is named explicitly.
func SearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rollcount"))
	}
	return paths
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

// Load reads file (or rollcount.yaml from SearchPaths when file is empty),
// applies environment overrides and validates the result. A missing
// rollcount.yaml in the search paths is not an error; a missing named file
// is.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(Default()))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("logging.level", EnvPrefix+"_LOGGING_LEVEL", EnvPrefix+"_LOG_LEVEL"); err != nil {
		return Config{}, errors.Wrap(err, "bind log level")
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// setDefaults registers every leaf of val under its mapstructure key so
// viper knows the key exists and AutomaticEnv can override it.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if !f.IsExported() || key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
