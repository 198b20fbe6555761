package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/config"
	"github.com/JakeFAU/rayin-translation/internal/logging"
	"github.com/JakeFAU/rayin-translation/internal/presets"
	"github.com/JakeFAU/rayin-translation/internal/server"
	"github.com/JakeFAU/rayin-translation/internal/translate"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Ready(ctx context.Context) error
	Logger() *zap.Logger
	Translator() *translate.Translator
	Presets() *presets.Service
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rayin",
		Short: "Rayin Translation reading site and translation tools.",
		Long: `rayin serves the Rayin Translation reading site: the novel and chapter
API, the admin tools for chapters, covers and presets, and the streaming
translation endpoint. It also exposes the translator on the command line.`,
		SilenceUsage: true,

		// Build the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				return appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables prefixed RAYIN_ override it)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTranslateCmd())
	cmd.AddCommand(newDiagnoseCmd())

	return cmd
}

// resolveApp returns the App stored by the root command's pre-run hook.
func resolveApp(cmd *cobra.Command) (App, error) {
	appInstance, ok := cmd.Context().Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger, lerr := logging.New(false, false)
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
