// Package assets stores reference images attached to appointments and
// resolves their public URLs.
package assets

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrEmpty is returned for an upload without content.
	ErrEmpty = errors.New("assets: empty upload")
	// ErrTooLarge is returned when an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("assets: upload too large")
	// ErrUnsupportedType is returned for content that is not an accepted image format.
	ErrUnsupportedType = errors.New("assets: unsupported content type")
	// ErrInvalidID is returned for identifiers that cannot name a stored object.
	ErrInvalidID = errors.New("assets: invalid id")
	// ErrNotFound is returned when no object is stored under the id.
	ErrNotFound = errors.New("assets: not found")
)

// DefaultMaxBytes bounds a single image upload.
const DefaultMaxBytes = 10 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[a-z]+$`)

// Object is an image to store.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store persists objects and resolves their URLs.
type Store interface {
	Put(ctx context.Context, object Object) (string, error)
	URL(ctx context.Context, id string) (string, error)
}

// prepared is an upload that passed validation.
type prepared struct {
	contentType string
	extension   string
	checksum    string
	data        []byte
}

// prepare validates the object and sniffs its content type when it is missing
// or generic.
func prepare(object Object, maxBytes int64) (prepared, error) {
	if len(object.Data) == 0 {
		return prepared{}, ErrEmpty
	}
	if maxBytes > 0 && int64(len(object.Data)) > maxBytes {
		return prepared{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(object.Data))
	}

	contentType := normalizeContentType(object.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = normalizeContentType(http.DetectContentType(object.Data))
	}
	ext, ok := extensions[contentType]
	if !ok {
		return prepared{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	return prepared{
		contentType: contentType,
		extension:   ext,
		checksum:    Checksum(object.Data),
		data:        object.Data,
	}, nil
}

func normalizeContentType(value string) string {
	value, _, _ = strings.Cut(value, ";")
	return strings.ToLower(strings.TrimSpace(value))
}

// Checksum returns the hex encoded BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func joinURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id
}
