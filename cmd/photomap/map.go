package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/geotag/photomap/internal/api"
	"github.com/geotag/photomap/internal/collection"
	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/marker"
	"github.com/geotag/photomap/pkg/core"

	"github.com/spf13/cobra"
)

const sceneTimeout = 5 * time.Second

func mapCmd(a *app) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "map <id>",
		Short: "Print the map scene for a photo as JSON",
		Long: `map renders the marker, callout and region for one photo. Markers still
loading after a few seconds are printed with their spinner.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := core.RecordID(args[0])
			var (
				scene marker.Scene
				err   error
			)
			if remote {
				srv := config.GetServerConfig()
				scene, err = api.New(srv.URL, srv.Secret).Scene(cmd.Context(), id)
			} else {
				scene, err = localScene(cmd.Context(), a, id)
			}
			if err != nil {
				return err
			}
			return writeScene(cmd.OutOrStdout(), scene)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Render on server.url instead of from the local store")
	return cmd
}

func localScene(ctx context.Context, a *app, id core.RecordID) (marker.Scene, error) {
	storageCfg := config.GetStorageConfig()
	backend, err := openStorage(ctx, storageCfg, a.logger)
	if err != nil {
		return marker.Scene{}, err
	}
	defer backend.Close()

	view, err := collection.New(backend, storageCfg.Collection, a.logger).Mount(ctx)
	if err != nil {
		return marker.Scene{}, err
	}
	defer view.Close()
	if err := view.WaitReady(ctx); err != nil {
		return marker.Scene{}, err
	}

	route, err := view.Select(id)
	if err != nil {
		return marker.Scene{}, err
	}

	board := marker.NewBoard(ctx, marker.URILoader{}, a.logger)
	defer board.Close()
	board.Track(route)

	settleCtx, cancel := context.WithTimeout(ctx, sceneTimeout)
	defer cancel()
	_ = board.Settle(settleCtx)
	return board.Scene(id)
}

func writeScene(out io.Writer, scene marker.Scene) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(scene)
}
