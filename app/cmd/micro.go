package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/database"
	"github.com/wadispatch/pkg/domains/campaign"
	"github.com/wadispatch/pkg/logger"
	"github.com/wadispatch/pkg/server"
	"github.com/wadispatch/pkg/utils"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "wadispatch",
		Short: "WhatsApp bulk campaign dispatcher",
		Long:  "Runs tenant WhatsApp sessions, dispatches bulk campaigns and answers replies with auto-response rules.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduler and the sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if err := database.InitDB(cfg.Database); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Return campaigns left running by a dead process to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if err := database.InitDB(cfg.Database); err != nil {
				return err
			}
			scheduler := campaign.NewScheduler(campaign.NewRepo(database.DBClient()), nil, cfg.Scheduler, nil)
			n, err := scheduler.Reconcile(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d campaigns returned to pending\n", n)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wadispatch %s (commit: %s)\n", Version, Commit)
		},
	})
	return root
}

// loadConfig reads .env first so its values can override the file. An
// explicit --config path must exist.
func loadConfig(path string) (*config.Config, error) {
	utils.LoadEnv()
	var configs *config.Config
	if path == "" {
		configs = config.InitConfig()
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		configs = loaded
	}
	logger.Init(configs.Log)
	if err := configs.Validate(); err != nil {
		return nil, err
	}
	return configs, nil
}

func serve(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	return server.LaunchHttpServer(cfg)
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
