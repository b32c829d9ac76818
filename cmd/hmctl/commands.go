package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"heatmap/internal"
	"heatmap/internal/events"
	"heatmap/internal/seeder"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the events table or indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(app *internal.Application) error {
			if err := app.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed")
			return nil
		})
	},
}

var seedFlags struct {
	site   string
	page   string
	url    string
	clicks int
	seed   uint64
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Ingest synthetic clicks for the elements of an HTML page",
	Long: `Parses an HTML page, picks random elements (interactive ones more often)
and ingests one batch of click events for them through the regular
ingestion path.

Example:
  hmctl seed --site demo --html public/index.html --clicks 500`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(seedFlags.page)
		if err != nil {
			return fmt.Errorf("failed to open page: %w", err)
		}
		defer f.Close()

		pageURL := seedFlags.url
		if pageURL == "" {
			pageURL = "file://" + seedFlags.page
		}

		return withApp(cmd.Context(), func(app *internal.Application) error {
			s := seeder.NewSeeder(app.Events, app.Logger, seedFlags.seed)
			stored, err := s.SeedPage(cmd.Context(), f, seedFlags.site, pageURL, seedFlags.clicks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d clicks for site %s\n", stored, seedFlags.site)
			return nil
		})
	},
}

var topFlags struct {
	site      string
	eventType string
	limit     int
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Print the most interacted-with elements of a site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(app *internal.Application) error {
			store, err := app.DBManager.Acquire(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := events.TopInteractions(cmd.Context(), store, topFlags.site, topFlags.eventType, topFlags.limit)
			if err != nil {
				return err
			}
			return renderTop(cmd.OutOrStdout(), rows)
		})
	},
}

var analyzeFlags struct {
	site string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Generate the insight report for a site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(app *internal.Application) error {
			report, err := app.Analyzer.Generate(cmd.Context(), analyzeFlags.site)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFlags.site, "site", "", "site id to seed (required)")
	seedCmd.Flags().StringVar(&seedFlags.page, "html", "", "path to an HTML page (required)")
	seedCmd.Flags().StringVar(&seedFlags.url, "url", "", "page URL stored with the events")
	seedCmd.Flags().IntVar(&seedFlags.clicks, "clicks", 100, "number of clicks to generate")
	seedCmd.Flags().Uint64Var(&seedFlags.seed, "seed", 1, "random seed")
	seedCmd.MarkFlagRequired("site")
	seedCmd.MarkFlagRequired("html")

	topCmd.Flags().StringVar(&topFlags.site, "site", "", "site id (required)")
	topCmd.Flags().StringVar(&topFlags.eventType, "type", events.EventTypeClick, "interaction type")
	topCmd.Flags().IntVar(&topFlags.limit, "limit", events.DefaultTopLimit, "number of rows")
	topCmd.MarkFlagRequired("site")

	analyzeCmd.Flags().StringVar(&analyzeFlags.site, "site", "", "site id (required)")
	analyzeCmd.MarkFlagRequired("site")
}

// renderTop prints aggregation rows as an aligned table.
func renderTop(w io.Writer, rows []events.PathCount) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No matching events.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tCOUNT\tPATH")
	for i, row := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", i+1, row.Count, row.Path)
	}
	return tw.Flush()
}
