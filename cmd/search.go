package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"price-aggregator/models"
	"price-aggregator/storage"
)

var (
	flagDirect  bool
	flagOutput  string
	flagExport  string
	flagBest    int
	flagReport  bool
	flagDetails bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <query>",
	Short: "Compare prices for a query across every marketplace",
	Long: `Search every configured marketplace and print the price records within the
configured threshold of the cheapest one, cheapest first.

Use --direct when the query is a model number: only titles containing it are kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validOutput(flagOutput); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			q := models.SearchQuery{Text: strings.Join(args, " "), Direct: flagDirect}
			records, err := app.engine.ComparePrices(ctx, q)
			if err != nil {
				return err
			}
			if err := renderPrices(cmd.OutOrStdout(), flagOutput, records); err != nil {
				return err
			}

			listings := make([]models.Listing, 0, len(records))
			for _, r := range records {
				listings = append(listings, r.Listing())
			}
			return export(ctx, q.Text, listings)
		})
	},
}

var detailsCmd = &cobra.Command{
	Use:   "details <query>",
	Short: "Show detailed listings for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validOutput(flagOutput); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			q := models.SearchQuery{Text: strings.Join(args, " "), Direct: flagDirect}

			var (
				listings []models.Listing
				err      error
			)
			if flagBest > 0 {
				listings, err = app.engine.BestPicks(ctx, q, flagBest)
			} else {
				listings, err = app.engine.GetDetailedProducts(ctx, q)
			}
			if err != nil {
				return err
			}

			if err := renderListings(cmd.OutOrStdout(), flagOutput, listings); err != nil {
				return err
			}
			if flagReport {
				app.insights.Print(cmd.OutOrStdout(), app.insights.Generate(q.Text, listings))
			}
			return export(ctx, q.Text, listings)
		})
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models <model-number>...",
	Short: "Compare prices for several model numbers at once",
	Long: `Search each model number in direct mode and rank the combined results.
List decoration such as "1." or "型番:" is stripped from each argument.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validOutput(flagOutput); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			if flagDetails {
				listings, err := app.engine.DetailedProductsForModelNumbers(ctx, args)
				if err != nil {
					return err
				}
				return renderListings(cmd.OutOrStdout(), flagOutput, listings)
			}
			records, err := app.engine.CompareModelNumbers(ctx, args)
			if err != nil {
				return err
			}
			return renderPrices(cmd.OutOrStdout(), flagOutput, records)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{compareCmd, detailsCmd, modelsCmd} {
		c.Flags().StringVarP(&flagOutput, "output", "o", outputTable, "output format: table, json, yaml or csv")
	}
	for _, c := range []*cobra.Command{compareCmd, detailsCmd} {
		c.Flags().BoolVar(&flagDirect, "direct", false, "keep only titles containing the query (model number search)")
		c.Flags().StringVar(&flagExport, "export", "", "also write the results to this CSV file")
	}
	detailsCmd.Flags().IntVar(&flagBest, "best", 0, "return only the N best listings (price, then ranking)")
	detailsCmd.Flags().BoolVar(&flagReport, "report", false, "print a price summary after the listings")
	modelsCmd.Flags().BoolVar(&flagDetails, "details", false, "show detailed listings instead of price records")
}

// withApp runs fn with a wired App and a context cancelled on interrupt.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	return fn(ctx, app)
}

func export(ctx context.Context, query string, listings []models.Listing) error {
	if flagExport == "" {
		return nil
	}
	w, err := storage.NewCSVWriter(flagExport)
	if err != nil {
		return err
	}
	if err := w.Write(ctx, query, listings); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", flagExport, err)
	}
	return nil
}
