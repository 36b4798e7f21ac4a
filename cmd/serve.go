package cmd

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"price-aggregator/api"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			if app.cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			addr := app.cfg.HTTP.Addr
			if flagAddr != "" {
				addr = flagAddr
			}
			srv := api.NewServer(app.engine, api.Options{
				Addr:         addr,
				ReadTimeout:  app.cfg.HTTP.ReadTimeout,
				WriteTimeout: app.cfg.HTTP.WriteTimeout,
				BestPicks:    app.cfg.Search.BestPicks,
			}, app.registry, app.logger)
			return srv.Run(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides http.addr)")
}
