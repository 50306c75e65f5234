package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/geotag/photomap/internal/api"
	"github.com/geotag/photomap/internal/collection"
	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/pkg/core"
	"github.com/geotag/photomap/pkg/streaming"

	"github.com/spf13/cobra"
)

func listCmd(a *app) *cobra.Command {
	var remote, watch bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the photos in the collection, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if remote {
				return listRemote(ctx, a, watch, out)
			}
			return listLocal(ctx, a, watch, out)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "List from server.url instead of the local store")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep printing the collection as it changes")
	return cmd
}

func listLocal(ctx context.Context, a *app, watch bool, out io.Writer) error {
	storageCfg := config.GetStorageConfig()
	backend, err := openStorage(ctx, storageCfg, a.logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	view, err := collection.New(backend, storageCfg.Collection, a.logger).Mount(ctx)
	if err != nil {
		return err
	}
	defer view.Close()

	if err := view.WaitReady(ctx); err != nil {
		return err
	}
	printRecords(out, view.Records())
	if !watch {
		return nil
	}

	view.OnChange(func(records []core.PhotoRecord) {
		fmt.Fprintln(out)
		printRecords(out, records)
	})
	<-ctx.Done()
	return nil
}

func listRemote(ctx context.Context, a *app, watch bool, out io.Writer) error {
	srv := config.GetServerConfig()
	client := api.New(srv.URL, srv.Secret)
	if !watch {
		snap, err := client.ListPhotos(ctx)
		if err != nil {
			return err
		}
		printSnapshot(out, snap)
		return nil
	}

	// the feed pushes a snapshot right after the ack, so no initial GET
	feed, err := client.Subscribe(ctx, config.GetStorageConfig().Collection, func(snap streaming.SnapshotPayload) {
		printSnapshot(out, snap)
		fmt.Fprintln(out)
	}, a.logger)
	if err != nil {
		return err
	}
	defer feed.Close()
	<-ctx.Done()
	return nil
}

func printRecords(out io.Writer, records []core.PhotoRecord) {
	printSnapshot(out, streaming.NewSnapshot("", records))
}

func printSnapshot(out io.Writer, snap streaming.SnapshotPayload) {
	fmt.Fprintln(out, snap.Label)
	if len(snap.Photos) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOCATION\tUID\tTIMESTAMP")
	for _, p := range snap.Photos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Location, p.UID, p.Formatted)
	}
	_ = tw.Flush()
}
