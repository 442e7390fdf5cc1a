package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/HlhDataScience/DocsIngestionApi/internal/source"
)

func TestDocNameFromLocation(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"docs/guide.md", "guide"},
		{"/abs/path/Report 2024.pdf", "Report 2024"},
		{"s3://bucket/folder/manual.docx", "manual"},
		{"github://owner/repo/docs/intro.md@v1.2", "intro"},
		{"notes", "notes"},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, docNameFromLocation(tt.location))
		})
	}
}

func TestListDocumentsSkipsUnsupported(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.md", "b.txt", "c.key", "sub/d.html"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}

	got, err := listDocuments(context.Background(), source.NewFileSource(""), dir)
	require.NoError(t, err)

	var names []string
	for _, loc := range got {
		names = append(names, filepath.Base(loc))
	}
	assert.ElementsMatch(t, []string{"a.md", "b.txt", "d.html"}, names)
}

func TestHashKeyFromStdin(t *testing.T) {
	var out bytes.Buffer
	hashKeyCmd.SetIn(strings.NewReader("s3cret\n"))
	hashKeyCmd.SetOut(&out)
	t.Cleanup(func() {
		hashKeyCmd.SetIn(nil)
		hashKeyCmd.SetOut(nil)
	})

	require.NoError(t, runHashKey(hashKeyCmd, nil))

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestHashKeyRejectsEmpty(t *testing.T) {
	hashKeyCmd.SetIn(strings.NewReader("\n"))
	t.Cleanup(func() { hashKeyCmd.SetIn(nil) })

	assert.Error(t, runHashKey(hashKeyCmd, nil))
}
