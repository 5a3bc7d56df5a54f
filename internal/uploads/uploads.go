// Package uploads stores request-scoped files in a temporary directory.
package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

const maxNameLength = 100

// Store writes uploads under one directory. Names are unique per file so
// concurrent requests never collide.
type Store struct {
	dir string
	log logger.Logger
}

func NewStore(dir string, log logger.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{dir: dir, log: log.With("uploads")}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save copies r into a new upload file named after originalName.
func (s *Store) Save(originalName, mimeHint string, r io.Reader) (models.UploadedFile, error) {
	name := fmt.Sprintf("%d-%s-%s", time.Now().UnixNano(), uuid.NewString(), SanitizeName(originalName))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return models.UploadedFile{}, fmt.Errorf("failed to write upload %s: %w", originalName, err)
	}

	s.log.Debug("Saved upload %s as %s (%d bytes)", originalName, name, n)
	return models.UploadedFile{
		OriginalName: originalName,
		StoragePath:  path,
		SizeBytes:    n,
		MimeHint:     mimeHint,
	}, nil
}

// SaveBytes stores an in-memory document.
func (s *Store) SaveBytes(originalName, mimeHint string, data []byte) (models.UploadedFile, error) {
	return s.Save(originalName, mimeHint, bytes.NewReader(data))
}

// Cleanup removes every file. Failures are logged and never returned.
func (s *Store) Cleanup(files []models.UploadedFile) {
	for _, f := range files {
		if f.StoragePath == "" {
			continue
		}
		if err := os.Remove(f.StoragePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("Failed to remove upload %s: %v", f.StoragePath, err)
		}
	}
}

// SanitizeName reduces a client-supplied file name to a safe base name.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		out = "upload"
	}
	if len(out) > maxNameLength {
		out = out[len(out)-maxNameLength:]
	}
	return out
}
