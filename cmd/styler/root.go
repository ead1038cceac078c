package main

import (
	"fmt"
	"os"

	"github.com/Brownie44l1/styler/internal/config"
	"github.com/Brownie44l1/styler/internal/model"
	"github.com/Brownie44l1/styler/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app carries the configuration shared by every subcommand.
type app struct {
	v   *viper.Viper
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "styler",
		Short:         "Neural style transfer with sharpening and blending controls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				a.v.SetConfigFile(configFile)
			}
			if err := config.Read(a.v); err != nil {
				return err
			}

			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg

			setupLogging(cfg.Log)
			if used := a.v.ConfigFileUsed(); used != "" {
				log.Debug().Str("path", used).Msg("read config file")
			}

			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.toml or /etc/styler/config.toml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("model", "", "path to the style transfer ONNX model")
	flags.String("metadata", "", "path to the model metadata JSON")
	flags.String("ort-lib", "", "path to the onnxruntime shared library")
	a.bind("log.level", flags.Lookup("log-level"))
	a.bind("model.path", flags.Lookup("model"))
	a.bind("model.metadata_path", flags.Lookup("metadata"))
	a.bind("model.library_path", flags.Lookup("ort-lib"))

	root.AddCommand(a.newServeCmd(), a.newApplyCmd(), a.newBotCmd())

	return root
}

func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", key, err))
	}
}

func setupLogging(cfg config.Log) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	zerolog.DefaultContextLogger = &log.Logger
}

// loadPipeline loads the style model once and wraps it in a pipeline. The
// caller owns the engine and must close it.
func (a *app) loadPipeline() (*pipeline.Pipeline, *model.Engine, error) {
	log.Info().Str("path", a.cfg.Model.Path).Msg("loading model")

	engine, err := model.NewEngine(model.Config{
		ModelPath:    a.cfg.Model.Path,
		MetadataPath: a.cfg.Model.MetadataPath,
		SHA256:       a.cfg.Model.SHA256,
		LibraryPath:  a.cfg.Model.LibraryPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize model: %w", err)
	}

	if size := engine.Metadata.ImageSize; size != a.cfg.Pipeline.ImageSize {
		engine.Close()
		return nil, nil, fmt.Errorf("model expects %dpx images but pipeline.image_size is %d",
			size, a.cfg.Pipeline.ImageSize)
	}

	p, err := pipeline.New(engine, pipeline.Options{
		ImageSize:    a.cfg.Pipeline.ImageSize,
		MaxSharpness: a.cfg.Pipeline.MaxSharpness,
		ModelTimeout: a.cfg.Model.Timeout,
	})
	if err != nil {
		engine.Close()
		return nil, nil, err
	}

	return p, engine, nil
}
