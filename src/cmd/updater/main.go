package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BenDodCod/projectorsclient-sub001/src/internal/config"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/download"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/github"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/rollout"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/settings"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/update"
	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "updater",
	Short: "Update checker and installer downloader for the ProjectorsClient desktop app",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional, it only carries overrides such as GITHUB_TOKEN
		_ = godotenv.Load()

		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		log.SetLevel(level)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "updater.yaml", "path to the updater configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(checkCmd, stageCmd, skipCmd, bucketCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// subsystem bundles the collaborators the commands operate on. Everything is
// constructed here once and passed by reference; there are no package-level
// singletons.
type subsystem struct {
	cfg          *models.Config
	store        *settings.FileStore
	gate         *rollout.Gate
	downloader   *download.Downloader
	orchestrator *update.Orchestrator
	runner       *update.Runner
}

func buildSubsystem() (*subsystem, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	store, err := settings.NewFileStore(cfg.Settings.Path)
	if err != nil {
		return nil, err
	}

	source := github.NewClient(cfg.GitHub.APIBase, cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Token)
	gate := rollout.NewGate(store, source)

	downloader, err := download.NewDownloader(source, cfg.Download.WorkDir, cfg.Download.RetentionDays)
	if err != nil {
		return nil, err
	}

	orchestrator, err := update.NewOrchestrator(store, source, gate, downloader, cfg.App.CurrentVersion, *cfg.Check, cfg.Download)
	if err != nil {
		return nil, err
	}

	return &subsystem{
		cfg:          cfg,
		store:        store,
		gate:         gate,
		downloader:   downloader,
		orchestrator: orchestrator,
		runner:       update.NewRunner(orchestrator),
	}, nil
}
