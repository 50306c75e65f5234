package blob

import (
	"context"
	"fmt"

	"github.com/geotag/photomap/internal/config"
)

// Open selects a Store implementation from the blob config section.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	driver := Driver(cfg.Driver)
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
