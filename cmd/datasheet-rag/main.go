package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/app"
	"github.com/dshills/datasheet-rag/internal/config"
	"github.com/dshills/datasheet-rag/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "datasheet-rag:", err)
		stop()
		os.Exit(1)
	}
}

// cli carries the global flags and the state loaded before each command runs
type cli struct {
	configPath string
	envFile    string
	logLevel   string

	manager *config.Manager
	cfg     *config.Config
	log     *logging.Logger

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	c := &cli{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "datasheet-rag",
		Short:         "Question answering over manufacturing PDF datasheets",
		Long:          "datasheet-rag ingests PDF datasheets and manuals, indexes them for hybrid search and answers questions with cited sources through a REST API, an MCP server or the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "path to a .env file loaded before the environment")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return c.load()
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		if c.log != nil {
			_ = c.log.Close()
		}
		return nil
	}

	cmd.AddCommand(
		newServeCmd(c),
		newMCPCmd(c),
		newIngestCmd(c),
		newAskCmd(c),
		newReindexCmd(c),
		newSelfTestCmd(c),
		newConfigCmd(c),
		newVersionCmd(),
	)

	cmd.SetVersionTemplate(fmt.Sprintf("datasheet-rag {{.Version}} (built %s)\n", buildTime))
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

// load reads the configuration and builds the logger
func (c *cli) load() error {
	c.manager = config.NewManager(c.configPath, c.envFile, nil)
	cfg, err := c.manager.Load()
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	c.cfg = cfg

	log, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    cfg.Logging.Console,
	})
	if err != nil {
		return err
	}
	c.log = log
	return nil
}

// openApp wires the services for commands that need them
func (c *cli) openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, c.cfg, c.log.Logger)
	if err != nil {
		c.log.Error("failed to start services", zap.Error(err))
		return nil, err
	}
	return a, nil
}

// watchConfig applies log level changes from the config file while a server runs
func (c *cli) watchConfig() {
	c.manager.Watch(func(cfg *config.Config) {
		if c.logLevel != "" {
			return
		}
		if err := c.log.SetLevel(cfg.Logging.Level); err != nil {
			c.log.Warn("ignoring log level change", zap.Error(err))
			return
		}
		c.log.Info("log level changed", zap.String("level", cfg.Logging.Level))
	})
}
