package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/geotag/photomap/internal/blob"
	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/device"

	"github.com/spf13/cobra"
)

func galleryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Manage the device gallery that capture --gallery picks from",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <file>...",
			Short: "Copy image files into the gallery",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := blob.Open(cmd.Context(), config.GetBlobConfig())
				if err != nil {
					return err
				}
				for _, file := range args {
					info, err := device.AddToGallery(cmd.Context(), store, file)
					if err != nil {
						return err
					}
					a.logger.Debug("Added gallery image", "key", info.Key, "size", info.Size)
					fmt.Fprintln(cmd.OutOrStdout(), blob.Ref(info.Key).URI)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List gallery images",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := blob.Open(cmd.Context(), config.GetBlobConfig())
				if err != nil {
					return err
				}
				items, err := store.List(cmd.Context(), device.GalleryPrefix)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Gallery is empty.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%d\t%s\n",
						strings.TrimPrefix(it.Key, device.GalleryPrefix), it.Size, it.LastModified.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			},
		},
	)
	return cmd
}
