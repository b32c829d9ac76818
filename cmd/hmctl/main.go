// main.go - Operator control tool for heatmap
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"heatmap/internal"
)

const defaultShutdownTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   "hmctl",
	Short: "Operate a heatmap installation",
	Long: `hmctl runs maintenance and inspection tasks against the configured
event store: schema migration, seeding synthetic clicks from an HTML page,
printing the top clicked elements of a site and generating an insight report.

Configuration is read from the environment and from a .env file in the
working directory, exactly like the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd, topCmd, analyzeCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withApp builds the application, runs fn and releases the store connection.
func withApp(ctx context.Context, fn func(app *internal.Application) error) error {
	app, err := internal.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		app.DBManager.Close(closeCtx)
	}()

	return fn(app)
}
