// Package influx records upload telemetry to InfluxDB, falling back to a
// gzipped line protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/upload"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement is the name upload attempts are written under.
const Measurement = "upload"

// retention applied to a bucket created on first connect
const retentionSeconds = 60 * 60 * 24 * 90

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	Client      influxdb2.Client
	Writer      influxdb2_api.WriteAPI
	IsValid     bool
	Logger      zerolog.Logger
	BackupPath  string
	cfg         config.InfluxConfig
	mu          sync.Mutex
	backupFile  *os.File
	backupGzip  *gzip.Writer
	writerGroup sync.WaitGroup
}

var _ upload.Telemetry = (*Manager)(nil)

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *Manager {
	return &Manager{
		Logger:     log,
		BackupPath: backupPath,
		cfg:        cfg,
	}
}

// Connect pings the server and prepares the writer, or opens the backup file.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupGzip != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backupGzip = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	errorsCh := m.Writer.Errors()
	m.writerGroup.Add(1)
	go func() {
		defer m.writerGroup.Done()
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(_ context.Context, point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupGzip == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backupGzip.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// PointFor converts an upload attempt into a point.
func PointFor(a upload.Attempt, at time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(Measurement).
		AddTag("collection", a.Collection).
		AddTag("outcome", a.Outcome()).
		AddField("bytes", a.Bytes).
		AddField("duration_ms", a.Duration.Milliseconds()).
		SetTime(at)
	if a.ID != "" {
		p.AddField("id", string(a.ID))
	}
	if a.Err != nil {
		p.AddField("error", a.Err.Error())
	}
	return p
}

// RecordAttempt implements upload.Telemetry.
func (m *Manager) RecordAttempt(ctx context.Context, a upload.Attempt) {
	if err := m.WritePoint(ctx, PointFor(a, time.Now())); err != nil {
		m.Logger.Warn().Err(err).Msg("Dropping upload telemetry")
	}
}

// Close flushes pending points and the backup file.
func (m *Manager) Close() error {
	if m.Client != nil {
		if m.Writer != nil {
			m.Writer.Flush()
		}
		m.Client.Close()
		m.writerGroup.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupGzip == nil {
		return nil
	}
	err := m.backupGzip.Close()
	if cerr := m.backupFile.Close(); err == nil {
		err = cerr
	}
	m.backupGzip, m.backupFile = nil, nil
	return err
}
