package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/netthinne/internal/config"
	"github.com/MeKo-Tech/netthinne/internal/models"
	"github.com/MeKo-Tech/netthinne/internal/pipeline"
	"github.com/MeKo-Tech/netthinne/internal/version"
)

// buildPipeline creates the detect/serve pipeline. Tests replace it to run
// the commands against stub models.
var buildPipeline = func(cfg pipeline.Config) (*pipeline.Pipeline, error) {
	return pipeline.NewBuilderFromConfig(cfg).Build()
}

// app carries the state shared by one command tree.
type app struct {
	v       *viper.Viper
	loader  *config.Loader
	cfgFile string
	cfg     *config.Config
}

// NewRootCommand builds the netthinne command tree with its own viper
// instance, so separate trees never share flag state.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	a := &app{v: v, loader: config.NewLoaderWithViper(v)}

	root := &cobra.Command{
		Use:   "netthinne",
		Short: "Object detection and classification with Norwegian labels",
		Long: `netthinne finds objects in photos and names them in English and Norwegian.

Each image is run through a YOLO detector; every detected object is cropped
and classified by an ImageNet classifier, and both results are labelled.

Examples:
  netthinne detect photo.jpg
  netthinne detect *.png --format json --output results.json
  netthinne serve --port 8080`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: a.preRun,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	defaultModelsDir := models.DefaultModelsDir
	if envDir := os.Getenv(models.EnvModelsDir); envDir != "" {
		defaultModelsDir = envDir
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/netthinne, /etc/netthinne)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("models-dir", defaultModelsDir,
		"directory containing ONNX models and label files (also "+models.EnvModelsDir+")")

	a.bind(pf.Lookup("verbose"), "verbose")
	a.bind(pf.Lookup("log-level"), "log_level")
	a.bind(pf.Lookup("models-dir"), "models_dir")

	root.AddCommand(
		newDetectCmd(a),
		newServeCmd(a),
		newModelsCmd(a),
		newLabelsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
// SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	if err := a.bindFlags(cmd); err != nil {
		return err
	}
	cfg, err := a.loader.LoadFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg))
	if used := a.loader.GetConfigFileUsed(); used != "" {
		slog.Debug("Using config file", "path", used)
	}
	return nil
}

// newLogger writes JSON records to w at the configured level.
// Results go to stdout, so logs go to stderr.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// configKeyAnnotation marks a flag with the config key it overrides.
const configKeyAnnotation = "netthinne_config_key"

// bind records the config key for a flag. The binding happens in preRun so
// that flags with the same key on different subcommands do not collide.
func (a *app) bind(flag *pflag.Flag, key string) {
	if flag.Annotations == nil {
		flag.Annotations = map[string][]string{}
	}
	flag.Annotations[configKeyAnnotation] = []string{key}
}

func (a *app) bindFlags(cmd *cobra.Command) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKeyAnnotation]; ok {
			errs = append(errs, a.v.BindPFlag(keys[0], f))
		}
	})
	return errors.Join(errs...)
}
