package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestScheme(t *testing.T) {
	assert.Equal(t, "file", Scheme("docs/a.md"))
	assert.Equal(t, "file", Scheme("/abs/a.md"))
	assert.Equal(t, "s3", Scheme("S3://bucket/key"))
	assert.Equal(t, "github", Scheme("github://o/r/a.md@main"))
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "docs/a.md", ObjectPath("docs/a.md"))
	assert.Equal(t, "bucket/dir/report.pdf", ObjectPath("s3://bucket/dir/report.pdf"))
	assert.Equal(t, "o/r/docs/guide.md", ObjectPath("github://o/r/docs/guide.md@v1.2"))
}

type stubSource struct{ body string }

func (s stubSource) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestMux_Routes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.txt")
	require.NoError(t, os.WriteFile(path, []byte("from disk"), 0o600))

	m := NewMux()
	m.Register("s3", stubSource{body: "from s3"})

	rc, err := m.Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "from disk", readAll(t, rc))

	rc, err = m.Open(context.Background(), "s3://bucket/key.txt")
	require.NoError(t, err)
	assert.Equal(t, "from s3", readAll(t, rc))

	_, err = m.Open(context.Background(), "ftp://host/file.txt")
	assert.Error(t, err)

	_, err = m.List(context.Background(), "s3://bucket/")
	assert.Error(t, err, "stub source cannot list")
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("beta"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o600))

	src := NewFileSource(dir)

	rc, err := src.Open(context.Background(), "a.md")
	require.NoError(t, err)
	assert.Equal(t, "alpha", readAll(t, rc))

	_, err = src.Open(context.Background(), "missing.md")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = src.Open(context.Background(), "sub")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	files, err := src.List(context.Background(), ".")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "sub", "b.txt"),
	}, files)
}

func TestParseS3Location(t *testing.T) {
	bucket, key, err := ParseS3Location("s3://docs-bucket/hr/handbook.pdf")
	require.NoError(t, err)
	assert.Equal(t, "docs-bucket", bucket)
	assert.Equal(t, "hr/handbook.pdf", key)

	for _, bad := range []string{"s3://bucket", "s3:///key", "bucket/key"} {
		_, _, err := ParseS3Location(bad)
		assert.Error(t, err, bad)
	}
}

type fakeGetter struct {
	objects map[string]string
	gotKey  string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotKey = *in.Bucket + "/" + *in.Key
	body, ok := f.objects[f.gotKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Source(t *testing.T) {
	getter := &fakeGetter{objects: map[string]string{"b/doc.txt": "object body"}}
	src := &S3Source{client: getter}

	rc, err := src.Open(context.Background(), "s3://b/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "object body", readAll(t, rc))
	assert.Equal(t, "b/doc.txt", getter.gotKey)

	_, err = src.Open(context.Background(), "s3://b/missing.txt")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestParseGitHubLocation(t *testing.T) {
	loc, err := ParseGitHubLocation("github://cloudwego/docs/content/en/guide.md@main")
	require.NoError(t, err)
	assert.Equal(t, GitHubLocation{Owner: "cloudwego", Repo: "docs", Path: "content/en/guide.md", Ref: "main"}, loc)
	assert.Equal(t, "github://cloudwego/docs/content/en/guide.md@main", loc.String())

	loc, err = ParseGitHubLocation("github://o/r")
	require.NoError(t, err)
	assert.Empty(t, loc.Path)
	assert.Empty(t, loc.Ref)

	_, err = ParseGitHubLocation("github://only-owner")
	assert.Error(t, err)
}

func newGitHubTestSource(t *testing.T, handler http.HandlerFunc) *GitHubSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return &GitHubSource{client: client}
}

func fileJSON(name, path, content string) string {
	return fmt.Sprintf(`{"type":"file","name":%q,"path":%q,"encoding":"base64","content":%q}`,
		name, path, base64.StdEncoding.EncodeToString([]byte(content)))
}

func TestGitHubSource(t *testing.T) {
	var gotRef string
	src := newGitHubTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotRef = r.URL.Query().Get("ref")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/o/r/contents/docs":
			fmt.Fprint(w, `[{"type":"file","name":"a.md","path":"docs/a.md"},{"type":"dir","name":"sub","path":"docs/sub"}]`)
		case "/repos/o/r/contents/docs/sub":
			fmt.Fprint(w, `[{"type":"file","name":"b.md","path":"docs/sub/b.md"}]`)
		case "/repos/o/r/contents/docs/a.md":
			fmt.Fprint(w, fileJSON("a.md", "docs/a.md", "# A\n\nalpha"))
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		}
	})

	rc, err := src.Open(context.Background(), "github://o/r/docs/a.md@v2")
	require.NoError(t, err)
	assert.Equal(t, "# A\n\nalpha", readAll(t, rc))
	assert.Equal(t, "v2", gotRef)

	files, err := src.List(context.Background(), "github://o/r/docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"github://o/r/docs/a.md", "github://o/r/docs/sub/b.md"}, files)

	_, err = src.Open(context.Background(), "github://o/r/docs/missing.md")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}
