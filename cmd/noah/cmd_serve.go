package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/noah-network/noah/pkg/config"
	"github.com/noah-network/noah/pkg/gateway"
	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/util"
)

func newServeCmd(a *App) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard gateway",
		Long: `Serve the dashboard navigation surface over HTTP.

Every dashboard route answers with a JSON screen built from the inventory;
mutations are under /api/inventory. The session is the same stored token
the CLI uses. Stops on SIGINT or SIGTERM.

Examples:
  noah serve
  noah serve --listen 0.0.0.0:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.verbose {
				gin.SetMode(gin.DebugMode)
			} else {
				util.SetLogLevel("info")
				gin.SetMode(gin.ReleaseMode)
			}

			cfg := a.cfg
			if cfg == nil {
				cfg = config.Default()
			}
			gw := cfg.Gateway
			if listen == "" {
				listen = gw.Listen
			}
			a.session.Source = "gateway"
			user := ""
			if a.settings != nil {
				user = a.settings.LastUser
			}
			registry := inventory.NewRegistry(a.client, inventory.WithActor(user, "gateway"))

			srv := gateway.New(a.client, a.session, registry, gateway.Options{
				RateLimit: gw.RateLimitPerSec,
				Burst:     gw.Burst,
				CacheTTL:  gw.CacheTTL,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Dashboard gateway on http://%s (API %s)\n", listen, a.client.BaseURL())
			return srv.Run(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config gateway.listen)")
	return cmd
}
