// Command ragctl is the operator CLI: it runs sync, reconcile and health
// passes on demand, previews chunking for a file and serves the MCP tools.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/corpus-rag/internal/bootstrap"
	"github.com/kirillkom/corpus-rag/internal/config"
	"github.com/kirillkom/corpus-rag/internal/observability/logging"
)

const serviceName = "ragctl"

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Operate the document corpus index",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		cfg = config.Load()
		// stdout carries command output and the MCP stream, so logs go to stderr.
		slog.SetDefault(logging.New(cmd.ErrOrStderr(), serviceName, cfg.LogLevel, "text"))
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("ragctl_failed", "error", err)
		os.Exit(1)
	}
}

// withApp bootstraps the shared wiring for one command and tears it down after.
func withApp(ctx context.Context, connectQueue bool, fn func(*bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:      serviceName,
		ConnectQueue: connectQueue,
	})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
