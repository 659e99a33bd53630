package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
	"github.com/shoesfit/partner-server-go/internal/util"
)

const sniffLen = 512

// LocalUploader stores files below a root directory and addresses them as
// baseURL + "/" + key.
type LocalUploader struct {
	root    string
	baseURL string
	bucket  string
	maxSize int64
}

func NewLocalUploader(root, baseURL, bucket string, maxSize int64) (*LocalUploader, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalUploader{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		maxSize: maxSize,
	}, nil
}

func (u *LocalUploader) Upload(ctx context.Context, file File, directory string) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := cleanDirectory(directory)
	if err != nil {
		return nil, err
	}
	if file.Reader == nil {
		return nil, invalidFile("file is required")
	}
	if file.Size > u.maxSize {
		return nil, invalidFile(fmt.Sprintf("file exceeds %d bytes", u.maxSize))
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file.Reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperrors.External("storage", err)
	}
	if n == 0 {
		return nil, invalidFile("file is empty")
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, invalidFile("only JPEG, PNG, GIF, WEBP or PDF files are allowed")
	}

	key := path.Join(dir, util.NewID()+ext)
	target := filepath.Join(u.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return nil, apperrors.External("storage", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return nil, apperrors.External("storage", err)
	}
	defer os.Remove(tmp.Name())

	body := io.MultiReader(bytes.NewReader(head), file.Reader)
	written, err := io.Copy(tmp, io.LimitReader(body, u.maxSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, apperrors.External("storage", err)
	}
	if written > u.maxSize {
		return nil, invalidFile(fmt.Sprintf("file exceeds %d bytes", u.maxSize))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, apperrors.External("storage", err)
	}

	log.Info().Str("key", key).Int64("size", written).Str("content_type", contentType).Msg("file uploaded")

	return &UploadResult{
		URL:         u.baseURL + "/" + key,
		Bucket:      u.bucket,
		Key:         key,
		Size:        written,
		ContentType: contentType,
	}, nil
}

// Delete removes key. A missing file is not an error.
func (u *LocalUploader) Delete(ctx context.Context, bucket, key string) error {
	if bucket != u.bucket {
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	clean, err := cleanDirectory(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(u.root, filepath.FromSlash(clean)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.External("storage", err)
	}
	return nil
}

// cleanDirectory normalises a slash separated relative path and rejects any
// attempt to leave the root.
func cleanDirectory(p string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(p))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || strings.Contains(p, "..") {
		return "", fmt.Errorf("invalid storage path %q", p)
	}
	return clean, nil
}

func invalidFile(reason string) *apperrors.AppError {
	return apperrors.ValidationError(apperrors.FieldErrors{"businessRegistrationFile": reason})
}
