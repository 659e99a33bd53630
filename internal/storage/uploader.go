// Package storage is the boundary to wherever uploaded partner documents live.
package storage

import (
	"context"
	"io"
)

// File is an upload as received from the client. ContentType is the declared
// type; implementations sniff the content and do not trust it.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type UploadResult struct {
	URL         string `json:"url"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

type Uploader interface {
	Upload(ctx context.Context, file File, directory string) (*UploadResult, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Allowed document types and the extension stored for each.
var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}
