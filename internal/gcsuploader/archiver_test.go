package gcsuploader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type mockStorage struct {
	UploadFileFunc   func(ctx context.Context, bucketName, objectName, filePath string) error
	FetchFromGCSFunc func(ctx context.Context, gcsURI string) ([]byte, error)
}

func (m *mockStorage) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	return m.UploadFileFunc(ctx, bucketName, objectName, filePath)
}

func (m *mockStorage) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return m.FetchFromGCSFunc(ctx, gcsURI)
}

func TestArchiveSnapshot(t *testing.T) {
	var gotBucket, gotObject, gotPath string
	storage := &mockStorage{UploadFileFunc: func(_ context.Context, bucket, object, file string) error {
		gotBucket, gotObject, gotPath = bucket, object, file
		return nil
	}}

	a := NewSnapshotArchiver(storage, "agro-ledgers", "/ledger/")
	local := filepath.Join("data", "20250310T071500.000000000_ledger.xlsx")

	uri, err := a.ArchiveSnapshot(context.Background(), local)
	if err != nil {
		t.Fatalf("ArchiveSnapshot() error = %v", err)
	}
	if uri != "gs://agro-ledgers/ledger/20250310T071500.000000000_ledger.xlsx" {
		t.Errorf("ArchiveSnapshot() = %q", uri)
	}
	if gotBucket != "agro-ledgers" || gotObject != "ledger/20250310T071500.000000000_ledger.xlsx" || gotPath != local {
		t.Errorf("UploadFile(%q, %q, %q)", gotBucket, gotObject, gotPath)
	}
}

func TestArchiveSnapshotErrors(t *testing.T) {
	upErr := errors.New("quota")
	storage := &mockStorage{UploadFileFunc: func(context.Context, string, string, string) error { return upErr }}

	if _, err := NewSnapshotArchiver(storage, "b", "").ArchiveSnapshot(context.Background(), "x.xlsx"); !errors.Is(err, upErr) {
		t.Errorf("ArchiveSnapshot() error = %v, want %v", err, upErr)
	}
	if _, err := NewSnapshotArchiver(storage, "", "").ArchiveSnapshot(context.Background(), "x.xlsx"); err == nil {
		t.Error("ArchiveSnapshot() error = nil, want missing bucket error")
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/messages/a.txt", "bucket", "messages/a.txt", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"/tmp/a.txt", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			b, o, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if b != tt.wantBucket || o != tt.wantObject {
				t.Errorf("ParseGCSURI() = %q, %q", b, o)
			}
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	if got := ExtractFilenameFromGCSURI("gs://bucket/ledger/a_ledger.xlsx"); got != "a_ledger.xlsx" {
		t.Errorf("ExtractFilenameFromGCSURI() = %q", got)
	}
}

func TestReadSource(t *testing.T) {
	local := filepath.Join(t.TempDir(), "msg.txt")
	if err := os.WriteFile(local, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	storage := &mockStorage{FetchFromGCSFunc: func(_ context.Context, uri string) ([]byte, error) {
		return []byte("remote:" + uri), nil
	}}

	got, err := ReadSource(context.Background(), storage, local)
	if err != nil || string(got) != "local" {
		t.Errorf("ReadSource(local) = %q, %v", got, err)
	}
	got, err = ReadSource(context.Background(), storage, "gs://b/m.txt")
	if err != nil || string(got) != "remote:gs://b/m.txt" {
		t.Errorf("ReadSource(gs) = %q, %v", got, err)
	}
	if _, err := ReadSource(context.Background(), nil, "gs://b/m.txt"); err == nil {
		t.Error("ReadSource(gs, nil storage) error = nil")
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("a_ledger.XLSX"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("contentType(xlsx) = %q", got)
	}
	if got := contentType("blob"); got != "application/octet-stream" {
		t.Errorf("contentType(blob) = %q", got)
	}
}
