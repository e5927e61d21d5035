package service

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/storage"
)

// FileSigner issues and checks download links for stored blobs.
type FileSigner interface {
	SignedURL(key string, ttl time.Duration) (string, time.Time, error)
	Verify(key, expires, sig string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

const maxSignedURLTTL = 7 * 24 * time.Hour

// FileService hands out signed links to a user's own uploads.
type FileService struct {
	store FileSigner
}

func NewFileService(store FileSigner) *FileService {
	return &FileService{store: store}
}

type SignedURLInput struct {
	FilePath  string `json:"filePath"`
	ExpiresIn int    `json:"expiresIn"`
}

type SignedURLResult struct {
	SignedURL string    `json:"signedUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SignURL signs a link for a blob under <folder>/<userID>/.  ExpiresIn is
// in seconds; zero means one hour.
func (s *FileService) SignURL(userID string, in SignedURLInput) (SignedURLResult, error) {
	key := strings.TrimPrefix(strings.TrimSpace(in.FilePath), "/")
	if key == "" {
		return SignedURLResult{}, invalid("filePath is required")
	}
	ttl := storage.SignedURLTTL
	if in.ExpiresIn != 0 {
		ttl = time.Duration(in.ExpiresIn) * time.Second
		if ttl < 0 || ttl > maxSignedURLTTL {
			return SignedURLResult{}, invalid("expiresIn must be between 1 and 604800 seconds")
		}
	}
	if path.Clean(key) != key {
		return SignedURLResult{}, invalid("Invalid filePath")
	}
	parts := strings.Split(key, "/")
	if len(parts) < 3 || parts[1] != userID {
		return SignedURLResult{}, ForbiddenError("Access denied: You do not own this file")
	}
	u, exp, err := s.store.SignedURL(key, ttl)
	if errors.Is(err, storage.ErrInvalidPath) {
		return SignedURLResult{}, invalid("Invalid filePath")
	}
	if err != nil {
		return SignedURLResult{}, err
	}
	return SignedURLResult{SignedURL: u, ExpiresAt: exp}, nil
}

// Open returns the blob behind a signed link.
func (s *FileService) Open(ctx context.Context, key, expires, sig string) ([]byte, error) {
	if err := s.store.Verify(key, expires, sig); err != nil {
		return nil, ForbiddenError("Invalid or expired link")
	}
	b, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
		return nil, NotFoundError("File not found")
	}
	return b, err
}
