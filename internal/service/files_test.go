package service

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/storage"
)

func TestFileService_SignAndOpen(t *testing.T) {
	st, err := storage.New(t.TempDir(), []byte("k"))
	require.NoError(t, err)
	ctx := context.Background()
	key := "cv-uploads/u1/1700000000000_cv.pdf"
	require.NoError(t, st.Put(ctx, key, []byte("%PDF-1.4")))

	svc := NewFileService(st)
	res, err := svc.SignURL("u1", SignedURLInput{FilePath: key})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.SignedURL, "/files/"+key+"?"))

	u, err := url.Parse(res.SignedURL)
	require.NoError(t, err)
	q := u.Query()
	b, err := svc.Open(ctx, key, q.Get("expires"), q.Get("sig"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(b))

	_, err = svc.Open(ctx, key, q.Get("expires"), "bad")
	assert.IsType(t, ForbiddenError(""), err)

	_, err = svc.Open(ctx, "cv-uploads/u1/missing.pdf", q.Get("expires"), q.Get("sig"))
	assert.Error(t, err)
}

func TestFileService_SignErrors(t *testing.T) {
	st, err := storage.New(t.TempDir(), []byte("k"))
	require.NoError(t, err)
	svc := NewFileService(st)

	cases := []struct {
		name string
		in   SignedURLInput
		want any
	}{
		{"missing", SignedURLInput{}, &InputError{}},
		{"other owner", SignedURLInput{FilePath: "cv-uploads/u2/a.pdf"}, ForbiddenError("")},
		{"too shallow", SignedURLInput{FilePath: "u1/a.pdf"}, ForbiddenError("")},
		{"traversal", SignedURLInput{FilePath: "cv-uploads/u1/../u2/a.pdf"}, &InputError{}},
		{"ttl", SignedURLInput{FilePath: "cv-uploads/u1/a.pdf", ExpiresIn: -5}, &InputError{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SignURL("u1", tc.in)
			assert.IsType(t, tc.want, err)
		})
	}
}
