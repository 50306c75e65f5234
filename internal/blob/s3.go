package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds explicit construction parameters.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; custom endpoint such as MinIO
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
	PathStyle       bool
}

// S3 implements Store using an S3-compatible backend over a single bucket.
type S3 struct {
	client *s3.Client
	bucket string
}

var _ Store = (*S3)(nil)

// NewS3 creates an S3 blob store. Extra options are applied to the client.
func NewS3(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible servers vary in checksum support
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
		for _, fn := range optFns {
			fn(o)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// Driver returns the blob driver identifier.
func (s *S3) Driver() Driver { return DriverS3 }

// Put emulates create-only with a Head before the write. The body is
// buffered so the request can be signed without a trailing checksum.
func (s *S3) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if _, err := sanitizeKey(key); err != nil {
		return Info{}, err
	}
	if _, err := s.Head(ctx, key); err == nil {
		return Info{}, fmt.Errorf("%s: %w", key, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return Info{}, err
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	input := &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if opts.ContentType != "" {
		input.ContentType = &opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Info{}, fmt.Errorf("putting %s: %w", key, err)
	}
	return s.Head(ctx, key)
}

// Get streams the object body.
func (s *S3) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return Info{}, nil, s.mapErr(key, err)
	}
	info := fromHead(key, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified)
	return info, out.Body, nil
}

// Head returns object metadata.
func (s *S3) Head(ctx context.Context, key string) (Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return Info{}, s.mapErr(key, err)
	}
	return fromHead(key, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Delete removes the object.
func (s *S3) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.Head(ctx, key); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, s.mapErr(key, err)
	}
	return true, nil
}

// List pages through ListObjectsV2.
func (s *S3) List(ctx context.Context, prefix string) ([]Info, error) {
	var (
		infos []Info
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token})
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			infos = append(infos, Info{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *S3) mapErr(key string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}

func fromHead(key string, size int64, contentType, etag *string, md map[string]string, lastModified *time.Time) Info {
	lm := time.Now().UTC()
	if lastModified != nil {
		lm = *lastModified
	}
	return Info{
		Key:          key,
		Size:         size,
		ContentType:  aws.ToString(contentType),
		ETag:         strings.Trim(aws.ToString(etag), "\""),
		Metadata:     md,
		LastModified: lm,
	}
}
