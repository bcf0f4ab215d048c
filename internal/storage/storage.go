package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Storage publishes finished artifacts somewhere clients can fetch them.
type Storage interface {
	Publish(ctx context.Context, key, localPath string) (*UploadResult, error)
	DeleteFile(ctx context.Context, key string) error
}

type UploadResult struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// ArtifactKey is the storage key for a job's final artifact.
func ArtifactKey(jobID, ext string) string {
	return fmt.Sprintf("renders/%s/%s/final%s", time.Now().UTC().Format("2006/01/02"), jobID, ext)
}

// detectContentType sniffs the artifact so mp4 and webm are served correctly.
func detectContentType(r io.Reader) string {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// cleanKey rejects keys that would escape the storage root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("empty storage key")
	}
	return key, nil
}
