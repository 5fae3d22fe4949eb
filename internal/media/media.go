package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrInvalidData     = errors.New("invalid image data")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Upload is the optional file attached to an inbound chat frame.
type Upload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// Store writes uploaded images under a directory served as /static.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Save validates u and writes it, returning the stored file name relative to the media dir. The
// name carries the extension of the declared content type.
func (s *Store) Save(u Upload) (string, error) {
	ext, ok := allowedTypes[strings.ToLower(strings.TrimSpace(u.Type))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, u.Type)
	}
	if u.Size > s.maxBytes {
		return "", fmt.Errorf("%w: declared %d bytes, limit %d", ErrTooLarge, u.Size, s.maxBytes)
	}

	raw := u.Data
	if i := strings.Index(raw, ";base64,"); i >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[i+len(";base64,"):]
	}
	// DecodedLen counts padding, which is at most two bytes.
	if int64(base64.StdEncoding.DecodedLen(len(raw)))-2 > s.maxBytes {
		return "", fmt.Errorf("%w: encoded data exceeds %d bytes", ErrTooLarge, s.maxBytes)
	}
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if int64(len(content)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(content), s.maxBytes)
	}

	// The extension follows the content type; the client's file name is never trusted.
	name := fmt.Sprintf("%s_%s%s", s.now().UTC().Format("20060102_150405"), uuid.NewString()[:8], ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), content, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return name, nil
}
