package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/geotag/photomap/internal/api"
	"github.com/geotag/photomap/internal/auth"
	"github.com/geotag/photomap/internal/blob"
	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/device"
	"github.com/geotag/photomap/internal/dispatcher"
	"github.com/geotag/photomap/internal/influx"
	"github.com/geotag/photomap/internal/location"
	"github.com/geotag/photomap/internal/logging"
	"github.com/geotag/photomap/internal/media"
	"github.com/geotag/photomap/internal/notify"
	"github.com/geotag/photomap/internal/permission"
	"github.com/geotag/photomap/internal/pipeline"
	"github.com/geotag/photomap/internal/session"
	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/internal/upload"
	"github.com/geotag/photomap/pkg/core"

	"github.com/spf13/cobra"
)

type captureOptions struct {
	image   string
	gallery bool
	at      string
	as      string
	remote  bool
	yes     bool
}

func captureCmd(a *app) *cobra.Command {
	var opts captureOptions

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture or pick a photo, geotag it and upload it",
		Long: `capture runs one visit of the capture screen: it acquires a location fix,
takes a photo from the camera drop folder (or --image, or the gallery with
--gallery) and uploads it to the collection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd.Context(), a, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.image, "image", "", "Use this image file instead of waiting on the drop folder")
	cmd.Flags().BoolVar(&opts.gallery, "gallery", false, "Pick the newest gallery image instead of using the camera")
	cmd.Flags().StringVar(&opts.at, "at", "", `Fixed location "lat,lng" (defaults to device.location)`)
	cmd.Flags().StringVar(&opts.as, "as", "", "Signed-in identity recorded on the photo")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "Upload to server.url instead of the local store")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Grant permission prompts without asking")
	return cmd
}

// captureRig is one fully wired capture screen.
type captureRig struct {
	session    *session.CaptureSession
	manager    *pipeline.Manager
	dispatcher *dispatcher.Dispatcher
	store      upload.Appender
	backend    storage.Backend
	navigated  bool
	closers    []func()
}

func (r *captureRig) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func buildCapture(ctx context.Context, a *app, opts captureOptions, in io.Reader, out io.Writer) (*captureRig, error) {
	logger := a.logger
	rig := &captureRig{session: session.New()}
	notifier := notify.Printer{W: out}
	devCfg := config.GetDeviceConfig()

	var prompter permission.Prompter = device.NewTerminalPrompter(in, out)
	if opts.yes {
		prompter = permission.PrompterFunc(func(context.Context, permission.Kind, permission.Rationale) (bool, error) {
			return true, nil
		})
	}
	gate := permission.ForPlatform(devCfg.Platform, prompter, logger)

	provider, err := locationProvider(opts.at, devCfg.Location)
	if err != nil {
		return nil, err
	}
	loc := location.New(location.Dependencies{
		Permissions: gate,
		Provider:    provider,
		Sink:        rig.session,
		Notifier:    notifier,
		Logger:      logger,
	}, location.OptionsFromConfig(config.GetLocationConfig()))

	blobs, err := blob.Open(ctx, config.GetBlobConfig())
	if err != nil {
		return nil, fmt.Errorf("opening gallery: %w", err)
	}

	var camera media.Camera = &device.DropFolderCamera{Dir: devCfg.DropDir, Logger: logger}
	if opts.image != "" {
		camera = device.StaticCamera{Path: opts.image}
	}
	med := media.New(media.Dependencies{
		Permissions: gate,
		Camera:      camera,
		Gallery:     &device.BlobGallery{Store: blobs, Choose: device.Newest},
		Sink:        rig.session,
		Notifier:    notifier,
		Logger:      logger,
	})

	resolver := media.NewResolver()
	resolver.Register(blob.Scheme, blob.Reader{Store: blobs})

	storageCfg := config.GetStorageConfig()
	if opts.remote {
		srv := config.GetServerConfig()
		rig.store = api.New(srv.URL, srv.Secret)
		logger.Info("Uploading to remote server", "url", srv.URL)
	} else {
		backend, err := openStorage(ctx, storageCfg, logger)
		if err != nil {
			return nil, err
		}
		rig.backend = backend
		rig.store = backend
		rig.closers = append(rig.closers, func() { _ = backend.Close() })
	}

	telemetry := upload.Multi{}
	if m, err := upload.NewMetrics(); err != nil {
		logger.Warn("Upload metrics disabled", "error", err)
	} else {
		telemetry = append(telemetry, m)
	}
	if ic := config.GetInfluxConfig(); ic.Enabled {
		var w io.Writer = os.Stderr
		if a.logFile != nil {
			w = a.logFile
		}
		im := influx.NewManager(logging.NewZerolog(w, config.GetString("logLevel")), ic, a.dataPath("influx-backup.gz"))
		if err := im.Connect(ctx); err != nil {
			logger.Warn("InfluxDB unavailable", "error", err)
		}
		telemetry = append(telemetry, im)
		rig.closers = append(rig.closers, func() { _ = im.Close() })
	}

	authn := auth.NewContext()
	if opts.as != "" {
		authn.SetIdentity(opts.as)
	}

	up := upload.New(upload.Dependencies{
		Store:      rig.store,
		Reader:     resolver,
		Auth:       authn,
		Navigator:  upload.NavigatorFunc(func() { rig.navigated = true }),
		Notifier:   notifier,
		Telemetry:  telemetry,
		Logger:     logger,
		Collection: storageCfg.Collection,
		Policy:     upload.PolicyFromConfig(config.GetIdentityConfig()),
	})

	d, err := dispatcher.New(logger)
	if err != nil {
		rig.close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	rig.dispatcher = d
	rig.closers = append(rig.closers, d.Close)

	rig.manager = pipeline.NewManager(pipeline.Dependencies{
		Session:  rig.session,
		Location: loc,
		Media:    med,
		Uploader: up,
		Logger:   logger,
	})
	rig.manager.RegisterHandlers(d)
	return rig, nil
}

func locationProvider(flag, configured string) (location.Provider, error) {
	at := flag
	if at == "" {
		at = configured
	}
	if at == "" {
		return device.NoLocation{}, nil
	}
	return device.ParseFixedLocation(at)
}

// run drives the screen: location on mount, media selection, then upload.
// Location settles before the picker opens so terminal prompts never overlap.
func (r *captureRig) run(ctx context.Context, opts captureOptions, out io.Writer) (core.RecordID, error) {
	<-r.manager.Mount(ctx, r.dispatcher)
	fmt.Fprintln(out, r.manager.Screen().LocationStatus)

	command := pipeline.CmdCaptureCamera
	if opts.gallery {
		command = pipeline.CmdPickGallery
	}
	res, err := r.dispatcher.Dispatch(ctx, dispatcher.Event{Command: command})
	if err != nil {
		return "", err
	}
	if res == nil {
		fmt.Fprintln(out, "No image selected.")
		return "", nil
	}

	screen := r.manager.Screen()
	if !screen.CanUpload {
		return "", errors.New("upload not possible without an image and a location")
	}

	fmt.Fprintln(out, screen.UploadLabel+"...")
	res, err = r.dispatcher.Dispatch(ctx, dispatcher.Event{Command: pipeline.CmdUpload})
	if err != nil {
		return "", err
	}
	id, _ := res.(core.RecordID)
	return id, nil
}

func runCapture(ctx context.Context, a *app, opts captureOptions, in io.Reader, out io.Writer) error {
	rig, err := buildCapture(ctx, a, opts, in, out)
	if err != nil {
		return err
	}
	defer rig.close()

	id, err := rig.run(ctx, opts, out)
	if err != nil || id == "" {
		return err
	}
	fmt.Fprintf(out, "Photo %s saved.\n", id)

	if rig.navigated && rig.backend != nil {
		records, err := rig.backend.Query(ctx, config.GetStorageConfig().Collection, storage.NewestFirst)
		if err != nil {
			return err
		}
		printRecords(out, records)
	}
	return nil
}
