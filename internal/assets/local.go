package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps images in a directory. Files are named by content digest,
// so identical uploads share one file.
type LocalStore struct {
	dir           string
	publicBaseURL string
	maxBytes      int64
}

// NewLocalStore creates the directory if needed. publicBaseURL is the URL prefix
// under which dir is served.
func NewLocalStore(dir, publicBaseURL string, maxBytes int64) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("assets: local directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("assets: create directory: %w", err)
	}
	if publicBaseURL == "" {
		publicBaseURL = "/uploads"
	}
	return &LocalStore{dir: dir, publicBaseURL: publicBaseURL, maxBytes: maxBytes}, nil
}

// Dir returns the directory holding stored files.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put writes the object and returns its id.
func (s *LocalStore) Put(ctx context.Context, object Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := prepare(object, s.maxBytes)
	if err != nil {
		return "", err
	}

	id := p.checksum[:32] + p.extension
	path := filepath.Join(s.dir, id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("assets: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(p.data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("assets: write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("assets: close %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("assets: store %s: %w", id, err)
	}
	return id, nil
}

// URL returns the public URL of a stored file.
func (s *LocalStore) URL(ctx context.Context, id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(s.dir, id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("assets: stat %s: %w", id, err)
	}
	return joinURL(s.publicBaseURL, id), nil
}
