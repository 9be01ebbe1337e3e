// Package objectstore archives raw readings to the cold tier.
//
// # Key Layout
//
// Objects are date-partitioned under the tenant's target prefix:
//
//	[tenants/<tenant_id>/]<facility_id>/<equipment_id>/<YYYY>/<MM>/<DD>/<HH>/<timestamp>.json
//
// Readings that failed one or more storage tiers are additionally archived
// under errors/ with a processing_failed marker, so no accepted reading is
// ever lost even when the relational tiers are down.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

const unknownFacility = "unassigned"

// Archiver writes and lists cold-tier objects.
type Archiver struct {
	client *minio.Client
	logger *slog.Logger
}

// New creates the cold-tier client. The connection is lazy; the first put
// or list performs the dial.
func New(cfg config.ObjectStoreConfig, region string, logger *slog.Logger) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &Archiver{
		client: client,
		logger: logger.With("component", "objectstore"),
	}, nil
}

// archiveDocument is the stored form of a reading: the payload plus the
// archive bookkeeping fields.
type archiveDocument struct {
	Reading          *types.SensorReading `json:"reading"`
	TenantID         string               `json:"tenant_id"`
	ArchivedAt       time.Time            `json:"archived_at"`
	ProcessingFailed bool                 `json:"processing_failed,omitempty"`
}

// ArchiveReading writes one reading at its date-partitioned key and
// returns that key. A duplicate reading lands at the same key and
// overwrites.
func (a *Archiver) ArchiveReading(ctx context.Context, target dataplane.ObjectTarget, r *types.SensorReading) (string, error) {
	key := target.Key(ArchiveKey(r))
	if err := a.put(ctx, target.Bucket, key, r, false); err != nil {
		return "", err
	}
	return key, nil
}

// ArchiveFailed writes the raw reading to the error location with the
// processing_failed marker and returns the key.
func (a *Archiver) ArchiveFailed(ctx context.Context, target dataplane.ObjectTarget, r *types.SensorReading) (string, error) {
	key := target.Key(ErrorKey(r, time.Now().UTC()))
	if err := a.put(ctx, target.Bucket, key, r, true); err != nil {
		return "", err
	}
	return key, nil
}

func (a *Archiver) put(ctx context.Context, bucket, key string, r *types.SensorReading, failed bool) error {
	archivedAt := time.Now().UTC()
	doc := archiveDocument{
		Reading:          r,
		TenantID:         r.TenantID,
		ArchivedAt:       archivedAt,
		ProcessingFailed: failed,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding archive document: %w", err)
	}

	_, err = a.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"equipment-id": r.EquipmentID,
			"tenant-id":    r.TenantID,
			"sensor-type":  sensorTypes(r),
			"archived-at":  archivedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}

// ListKeys returns the archive keys for one equipment over [start, end).
// Keys only; bodies stay in the cold tier.
func (a *Archiver) ListKeys(ctx context.Context, target dataplane.ObjectTarget, equipmentID string, start, end time.Time) ([]string, error) {
	marker := "/" + equipmentID + "/"

	var keys []string
	for obj := range a.client.ListObjects(ctx, target.Bucket, minio.ListObjectsOptions{
		Prefix:    target.Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing objects: %w", obj.Err)
		}
		if !strings.Contains(obj.Key, marker) {
			continue
		}
		ts, ok := keyTimestamp(obj.Key)
		if !ok {
			continue
		}
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// ArchiveKey builds the date-partitioned key for a reading, relative to
// the tenant's prefix.
func ArchiveKey(r *types.SensorReading) string {
	facility := r.FacilityID
	if facility == "" {
		facility = unknownFacility
	}
	ts := r.Timestamp.UTC()
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%02d/%s.json",
		facility, r.EquipmentID,
		ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(),
		ts.Format(time.RFC3339))
}

// ErrorKey builds the error-archive key for a reading that failed a
// storage tier.
func ErrorKey(r *types.SensorReading, now time.Time) string {
	return fmt.Sprintf("errors/%s-%d.json", r.EquipmentID, now.UnixMilli())
}

// keyTimestamp recovers the reading timestamp from an archive key's final
// path segment.
func keyTimestamp(key string) (time.Time, bool) {
	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".json")
	ts, err := time.Parse(time.RFC3339, base)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// sensorTypes names the measurements a reading carries, for the object's
// metadata headers.
func sensorTypes(r *types.SensorReading) string {
	var present []string
	if r.Temperature != nil {
		present = append(present, "temperature")
	}
	if r.Vibration != nil {
		present = append(present, "vibration")
	}
	if r.Pressure != nil {
		present = append(present, "pressure")
	}
	if r.PowerConsumption != nil {
		present = append(present, "power")
	}
	if len(present) == 0 {
		return "none"
	}
	return strings.Join(present, ",")
}

// Ping verifies the endpoint answers within the configured timeout.
func (a *Archiver) Ping(ctx context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, config.DatabasePingTimeout)
	defer cancel()
	if _, err := a.client.BucketExists(ctx, bucket); err != nil {
		return fmt.Errorf("object store unreachable: %w", err)
	}
	return nil
}
