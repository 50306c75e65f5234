// Package main provides the photomap binary: headless capture, collection
// listing, map scenes and the live map feed server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/geotag/photomap/internal/config"

	"github.com/spf13/cobra"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const appName = "photomap"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp()
	err := rootCmd(a).ExecuteContext(ctx)
	a.shutdown()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Capture geotagged photos and browse them on a map",
		Long: `photomap captures a photo, tags it with the device location and
uploads it to a live collection that map clients follow in real time.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configDir, "config-dir", "c", ".", "Directory containing "+config.FileName)
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides logLevel")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildDate)
			},
		},
		captureCmd(a),
		listCmd(a),
		mapCmd(a),
		serveCmd(a),
		galleryCmd(a),
	)
	return cmd
}
