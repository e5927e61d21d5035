// Package storage keeps uploaded documents on the local filesystem and
// issues time-limited signed download URLs for them.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SignedURLTTL is the lifetime of a download link.
const SignedURLTTL = time.Hour

var (
	ErrNotFound     = errors.New("file not found")
	ErrInvalidPath  = errors.New("invalid file path")
	ErrBadSignature = errors.New("invalid or expired signature")
)

// Store is a directory-backed blob store.  Keys are slash separated and
// relative to the root.
type Store struct {
	root string
	key  []byte
	now  func() time.Time
}

// New returns a store rooted at dir signing URLs with key.
func New(dir string, key []byte) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Store{root: dir, key: key, now: time.Now}, nil
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName replaces every character outside [a-zA-Z0-9._-] with '_'.
func SanitizeName(name string) string {
	return unsafeName.ReplaceAllString(name, "_")
}

// CVKey builds the key for an uploaded CV.
func CVKey(userID string, at time.Time, fileName string) string {
	return fmt.Sprintf("cv-uploads/%s/%d_%s", userID, at.UnixMilli(), SanitizeName(fileName))
}

func (s *Store) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "\\") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Put writes data under key.  An existing blob is never overwritten.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", key, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(p)
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	return f.Close()
}

// Get reads the blob at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Delete removes the blob; a missing blob is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) sign(key string, expires int64) string {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(key))
	m.Write([]byte{'\n'})
	m.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(m.Sum(nil))
}

// SignedURL returns a path of the form /files/<key>?expires=..&sig=..
// valid for ttl.
func (s *Store) SignedURL(key string, ttl time.Duration) (string, time.Time, error) {
	if _, err := s.resolve(key); err != nil {
		return "", time.Time{}, err
	}
	exp := s.now().Add(ttl).Truncate(time.Second)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp.Unix(), 10))
	q.Set("sig", s.sign(key, exp.Unix()))
	u := url.URL{Path: "/files/" + key, RawQuery: q.Encode()}
	return u.String(), exp, nil
}

// Verify checks a signature produced by SignedURL.
func (s *Store) Verify(key, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if s.now().Unix() > exp {
		return ErrBadSignature
	}
	want := s.sign(key, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}
