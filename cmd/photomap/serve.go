package main

import (
	"errors"
	"net/http"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/mapfeed"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the collection over HTTP with a live websocket feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srvCfg := config.GetServerConfig()
			if addr == "" {
				addr = srvCfg.Address
			}

			storageCfg := config.GetStorageConfig()
			backend, err := openStorage(ctx, storageCfg, a.logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			if srvCfg.Secret == "" {
				a.logger.Warn("server.secret is empty, uploads are not authenticated")
			}
			server := mapfeed.New(mapfeed.Dependencies{
				Store:      backend,
				Collection: storageCfg.Collection,
				Secret:     srvCfg.Secret,
				Registry:   reg,
				Logger:     a.logger,
			})
			err = server.ListenAndServe(ctx, addr)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&addr, "address", "a", "", "Listen address (defaults to server.address)")
	return cmd
}
