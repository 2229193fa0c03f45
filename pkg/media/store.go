package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
)

const proofSubdir = "proofs"

// Store writes uploaded media to a local directory tree. Paths returned are
// relative to the base directory so they stay valid if the tree is relocated.
type Store struct {
	baseDir  string
	maxBytes int64
}

// NewStore builds a media store rooted at baseDir. maxUploadMB bounds single
// uploads; zero or negative means 10.
func NewStore(baseDir string, maxUploadMB int) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("media base directory required")
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &Store{
		baseDir:  baseDir,
		maxBytes: int64(maxUploadMB) << 20,
	}, nil
}

// SaveProofImage validates that content is an image and persists it under the
// proofs subdirectory. Returns the relative path to store on the transaction.
func (s *Store) SaveProofImage(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "screenshot is empty")
	}
	if int64(len(content)) > s.maxBytes {
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("screenshot exceeds the %d MB upload limit", s.maxBytes>>20))
	}

	detected := mimetype.Detect(content)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "screenshot must be an image")
	}

	dir := filepath.Join(s.baseDir, proofSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create media directory")
	}

	name := uuid.New().String() + detected.Extension()
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write screenshot")
	}
	return filepath.Join(proofSubdir, name), nil
}

// RemoveProofImage deletes a previously saved proof by the relative path
// SaveProofImage returned. A missing file is not an error.
func (s *Store) RemoveProofImage(ctx context.Context, relPath string) error {
	cleaned := filepath.Clean(strings.TrimSpace(relPath))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid media path")
	}
	if err := os.Remove(filepath.Join(s.baseDir, cleaned)); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove screenshot")
	}
	return nil
}
