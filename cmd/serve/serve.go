// Package serve implements the serve subcommand.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/leafnet-go/internal/api"
	"github.com/tphakala/leafnet-go/internal/buildinfo"
	"github.com/tphakala/leafnet-go/internal/classifier"
	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
	"github.com/tphakala/leafnet-go/internal/logger"
	"github.com/tphakala/leafnet-go/internal/monitor"
	"github.com/tphakala/leafnet-go/internal/observability"
	"github.com/tphakala/leafnet-go/internal/telemetry"
)

// Command creates the serve command which loads every model slot and
// serves predictions over HTTP until interrupted.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the prediction server",
		Long:  "Load every configured model slot and serve predictions over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, build)
		},
	}

	// Set up flags specific to the 'serve' command
	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("host", viper.GetString("server.host"), "Listen address, empty for all interfaces")
	cmd.Flags().IntP("port", "p", 5000, "Listen port")

	// Bind flags to the viper settings
	if err := viper.BindPFlag("server.host", cmd.Flags().Lookup("host")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("server.port", cmd.Flags().Lookup("port")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails. A model slot that cannot be loaded aborts startup.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := GetLogger()

	build = withSystemID(build)
	if err := telemetry.InitSentry(settings, build); err != nil {
		return err
	}
	defer telemetry.Shutdown(telemetry.DefaultFlushTimeout)

	m, err := observability.NewMetrics()
	if err != nil {
		return errors.StartupError(err).Component("serve").Build()
	}

	decoder, err := imaging.NewDecoder(imaging.OptionsFromSettings(&settings.Imaging))
	if err != nil {
		return errors.StartupError(err).Component("serve").Build()
	}

	registry, err := classifier.LoadFromSettings(ctx, settings,
		classifier.WithInputShape(decoder.Shape()),
		classifier.WithRecorder(m.Classifier))
	if err != nil {
		log.Error("model registry failed to load", logger.Error(err))
		telemetry.CaptureError(err, "serve")
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Warn("failed to release models", logger.Error(err))
		}
	}()

	for _, name := range registry.Names() {
		h, err := registry.Get(name)
		if err != nil {
			return err
		}
		m.Classifier.SetModelLoaded(name, h.Backend(), true)
	}

	server, err := api.New(api.ConfigFromSettings(settings), registry, decoder,
		api.WithMetrics(m),
		api.WithBuildInfo(build),
		api.WithResources(monitor.NewSampler(modelDir(settings), monitor.DefaultSampleInterval)))
	if err != nil {
		return errors.StartupError(err).Component("serve").Build()
	}

	log.Info("starting prediction server",
		logger.String("version", build.Version()),
		logger.String("slots", fmt.Sprint(registry.Names())),
		logger.Bool("reencode", decoder.ReencodeEnabled()))

	if err := server.ListenAndServe(ctx); err != nil {
		return err
	}

	log.Info("prediction server stopped")
	return nil
}

// withSystemID attaches the persisted system ID, kept next to the config
// file, to build. Failure to persist it is logged and leaves the ID unset.
func withSystemID(build *buildinfo.Context) *buildinfo.Context {
	dir := "."
	if used := viper.ConfigFileUsed(); used != "" {
		dir = filepath.Dir(used)
	}

	id, err := telemetry.LoadOrCreateSystemID(dir)
	if err != nil {
		GetLogger().Warn("could not load system ID", logger.Error(err))
		return build
	}
	return buildinfo.NewContext(build.Version(), build.BuildDate(), id)
}

// modelDir returns the directory of the first configured model, the
// filesystem whose usage the health endpoint reports.
func modelDir(settings *conf.Settings) string {
	for _, name := range settings.SlotNames() {
		if p := settings.Models[name].ModelPath; p != "" {
			return filepath.Dir(p)
		}
	}
	return "."
}
