package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rflorenc/intersight-workbench/internal/config"
	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/platform"
	"github.com/rflorenc/intersight-workbench/internal/workflow"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const actionHelp = `Action to run:

  create-template  write an offline workbook with sample rows
  setup            write a new workbook populated from Intersight
  get-info         refresh the workbook dropdowns and print the inventory
  update-servers   refresh the resource group server lists
  push             create pools and policies
  template         create server profile templates
  profiles         create server profiles
  all              create everything in dependency order
`

// errFailures is returned when the action finished but the report holds
// failed objects or rejected rows.
var errFailures = errors.New("run finished with failures")

var (
	actionName string
	file       string
	output     string
	force      bool
	dryRun     bool
	configPath string
	envFile    string
	logLevel   string
)

var rootCommand = &cobra.Command{
	Use:           "intersight-workbench",
	Short:         "Drive Intersight pools, policies, templates and profiles from an Excel workbook.",
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAction,
}

func setupFlags() {
	pf := rootCommand.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file.")
	pf.StringVar(&envFile, "env-file", ".env", "Environment file with Intersight credentials.")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error).")
	pf.StringVarP(&file, "file", "f", "", "Workbook to read (default from configuration).")

	f := rootCommand.Flags()
	f.StringVarP(&actionName, "action", "a", "", actionHelp)
	f.StringVarP(&output, "output", "o", "", "Where to write the workbook (default --file).")
	f.BoolVar(&force, "force", false, "Replace an existing workbook on setup and create-template.")
	f.BoolVar(&dryRun, "dry-run", false, "Plan pushes without creating anything.")

	setupServeFlags()
	rootCommand.AddCommand(serveCommand)
}

func main() {
	setupFlags()
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig layers CLI flags over the file and environment configuration
// and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, nil, err
	}
	if file != "" {
		cfg.Workbook = file
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// connector opens signed sessions using the configured credentials.
func connector(cfg *config.Config) func(ctx context.Context) (workflow.Remote, error) {
	return func(ctx context.Context) (workflow.Remote, error) {
		conn, err := cfg.Connection()
		if err != nil {
			return nil, err
		}
		signer, err := platform.LoadSigner(conn.KeyID, conn.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		logging.Info(ctx, "connecting to intersight",
			zap.String(logging.FieldHost, conn.Host()),
			zap.String(logging.FieldKeyID, conn.MaskedKeyID()))
		client := platform.NewClient(conn, signer, platform.ClientOptions{
			Timeout:    cfg.Client.Timeout,
			PageSize:   cfg.Client.PageSize,
			RateLimit:  cfg.Client.RateLimit,
			MaxRetries: cfg.Client.MaxRetries,
		}, logging.FromContext(ctx))
		return platform.NewIntersight(client), nil
	}
}

func runAction(cmd *cobra.Command, args []string) error {
	if actionName == "" {
		return errors.New("--action is required")
	}
	action, err := workflow.ParseAction(actionName)
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	var remote workflow.Remote
	if !action.Offline() {
		if remote, err = connector(cfg)(ctx); err != nil {
			return err
		}
	}

	opts := workflow.Options{File: cfg.Workbook, Output: output, Force: force, DryRun: dryRun}
	res, err := workflow.NewRunner(remote, opts).Run(ctx, action)
	if res != nil {
		render(os.Stdout, action, res)
	}
	if err != nil {
		return err
	}
	if res.Report.HasFailures() {
		return errFailures
	}
	return nil
}
