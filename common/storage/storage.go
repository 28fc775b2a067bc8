package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/models"
)

// StorageService defines the blob operations the archive needs
type StorageService interface {
	// Upload stores content and returns the object name
	Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error)

	Download(ctx context.Context, bucket, objectName string) ([]byte, error)

	Delete(ctx context.Context, bucket, objectName string) error
}

// SnapshotArchive keeps the raw page snapshot behind every extraction request
// so a disputed extraction can be replayed against the remote extractor.
type SnapshotArchive struct {
	store  StorageService
	bucket string
	now    func() time.Time
}

func NewSnapshotArchive(store StorageService, bucket string) *SnapshotArchive {
	return &SnapshotArchive{
		store:  store,
		bucket: bucket,
		now:    time.Now,
	}
}

// ObjectName lays snapshots out by domain and UTC day.
func (a *SnapshotArchive) ObjectName(requestID string, snap models.PageSnapshot) string {
	domain := snap.Metadata.Domain
	if domain == "" {
		domain = "unknown"
	}
	return path.Join("snapshots", domain, a.now().UTC().Format("2006-01-02"), requestID+".json")
}

// Archive uploads snap and returns its object name.
func (a *SnapshotArchive) Archive(ctx context.Context, requestID string, snap models.PageSnapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return a.store.Upload(ctx, a.bucket, a.ObjectName(requestID, snap), data, "application/json")
}

// Load reads an archived snapshot back.
func (a *SnapshotArchive) Load(ctx context.Context, objectName string) (models.PageSnapshot, error) {
	data, err := a.store.Download(ctx, a.bucket, objectName)
	if err != nil {
		return models.PageSnapshot{}, err
	}
	var snap models.PageSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.PageSnapshot{}, fmt.Errorf("decoding snapshot %s: %w", objectName, err)
	}
	return snap, nil
}

// Remove deletes an archived snapshot.
func (a *SnapshotArchive) Remove(ctx context.Context, objectName string) error {
	return a.store.Delete(ctx, a.bucket, objectName)
}
