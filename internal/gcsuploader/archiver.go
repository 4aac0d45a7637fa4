package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dvloznov/agro-tracker/internal/logger"
)

// SnapshotArchiver copies committed ledger snapshots to a bucket. Each
// snapshot keeps its file name, so the bucket holds the full history.
type SnapshotArchiver struct {
	storage StorageService
	bucket  string
	prefix  string
}

// NewSnapshotArchiver creates an archiver writing to gs://bucket/prefix/.
func NewSnapshotArchiver(storage StorageService, bucket, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{
		storage: storage,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
	}
}

// ObjectName returns the object path used for a local snapshot.
func (a *SnapshotArchiver) ObjectName(localPath string) string {
	return path.Join(a.prefix, filepath.Base(localPath))
}

// ArchiveSnapshot uploads the snapshot at localPath and returns its gs:// URI.
func (a *SnapshotArchiver) ArchiveSnapshot(ctx context.Context, localPath string) (string, error) {
	if a.bucket == "" {
		return "", errors.New("ArchiveSnapshot: no bucket configured")
	}

	object := a.ObjectName(localPath)
	if err := a.storage.UploadFile(ctx, a.bucket, object, localPath); err != nil {
		return "", fmt.Errorf("ArchiveSnapshot: upload %s: %w", filepath.Base(localPath), err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.bucket, object)
	log := logger.FromContext(ctx)
	log.Info().Str("uri", uri).Msg("Snapshot archived")
	return uri, nil
}

// ReadSource returns the contents of a local file or a gs:// object.
func ReadSource(ctx context.Context, storage StorageService, src string) ([]byte, error) {
	if IsGCSURI(src) {
		if storage == nil {
			return nil, fmt.Errorf("ReadSource: %s needs cloud storage access", src)
		}
		return storage.FetchFromGCS(ctx, src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("ReadSource: %w", err)
	}
	return data, nil
}
