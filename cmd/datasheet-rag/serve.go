package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/storage"
)

// modelCheckTimeout bounds the startup model pull
const modelCheckTimeout = 10 * time.Minute

func newServeCmd(c *cli) *cobra.Command {
	var host string
	var port int
	var pullModel bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if host != "" {
				c.cfg.Server.Host = host
			}
			if port > 0 {
				c.cfg.Server.Port = port
			}

			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					c.log.Error("shutdown failed", zap.Error(err))
				}
			}()

			c.log.Info("datasheet-rag starting",
				zap.String("version", version),
				zap.String("build_mode", storage.BuildMode),
				zap.Bool("vector_extension", storage.VectorExtensionAvailable))

			if pullModel {
				go func() {
					pullCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
					defer cancel()
					if err := a.Generator.EnsureModel(pullCtx); err != nil {
						c.log.Warn("language model not ready, answers will fail until it is available",
							zap.String("model", a.Generator.Model()), zap.Error(err))
					}
				}()
			}

			c.watchConfig()

			addr := c.cfg.Server.Addr()
			fmt.Fprintf(cmd.ErrOrStderr(), "listening on http://%s\n", addr)
			return a.HTTPServer(version).Run(ctx, addr, c.cfg.Server.ReadTimeout, c.cfg.Server.WriteTimeout)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&pullModel, "pull-model", true, "pull the configured Ollama model in the background when it is missing")
	return cmd
}

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long:  "Run the Model Context Protocol server on stdin/stdout. Logs go to stderr and the log file, never stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			server, err := a.MCPServer(version)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			errChan := make(chan error, 1)
			go func() {
				c.log.Info("MCP server ready, listening on stdio")
				errChan <- server.Serve(ctx)
			}()

			select {
			case <-ctx.Done():
				c.log.Info("shutting down MCP server")
				return nil
			case err := <-errChan:
				return err
			}
		},
	}
}
