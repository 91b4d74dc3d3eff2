package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ersonp/relgraph/internal/application/httpapi"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Starts the HTTP API. Every /v1 request must carry the X-Organization-ID
header; X-Actor sets the principal recorded in the audit log. Default
relationship types are seeded for each organization on its first request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withInternalDeps(ctx, func(d *internalDeps) error {
				httpCfg := d.Config.HTTP
				if addr != "" {
					httpCfg.Addr = addr
				}

				e := httpapi.New(httpapi.Handlers{
					Relationships: d.Relationships,
					Queries:       d.Queries,
					Graph:         d.Graph,
					Bulk:          d.Bulk,
					Types:         d.Types,
				}, httpapi.Options{
					Logger:       d.Logger,
					Gatherer:     d.registry,
					SeedDefaults: true,
					Health:       d.relationalDB.Ping,
				})

				d.Logger.Info("serving relgraph API",
					zap.String("address", httpCfg.Addr),
					zap.String("database", d.relationalDB.Path()),
				)
				return httpapi.Serve(ctx, e, httpCfg, d.Logger)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}
