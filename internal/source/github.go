package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// GitHubLocation is a parsed github://owner/repo/path[@ref] location.
type GitHubLocation struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // Branch, tag or SHA; empty for the default branch
}

func (l GitHubLocation) String() string {
	s := fmt.Sprintf("github://%s/%s/%s", l.Owner, l.Repo, l.Path)
	if l.Ref != "" {
		s += "@" + l.Ref
	}
	return s
}

// ParseGitHubLocation parses github://owner/repo/path[@ref]. The path may
// be empty to address the repository root.
func ParseGitHubLocation(location string) (GitHubLocation, error) {
	rest, ok := strings.CutPrefix(location, "github://")
	if !ok {
		return GitHubLocation{}, fmt.Errorf("not a github location: %q", location)
	}

	var loc GitHubLocation
	if at := strings.LastIndex(rest, "@"); at >= 0 && !strings.Contains(rest[at:], "/") {
		loc.Ref = rest[at+1:]
		rest = rest[:at]
	}

	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return GitHubLocation{}, fmt.Errorf("github location needs owner and repo: %q", location)
	}
	loc.Owner, loc.Repo = parts[0], parts[1]
	if len(parts) == 3 {
		loc.Path = strings.Trim(parts[2], "/")
	}
	return loc, nil
}

// GitHubSource reads documents from GitHub repositories through the
// contents API.
type GitHubSource struct {
	client *github.Client
}

// NewGitHubSource creates a GitHub client with rate limiting support.
// When token is set, the client is authenticated for higher rate limits.
func NewGitHubSource(token string) (*GitHubSource, error) {
	// Handles primary and secondary (abuse detection) rate limits by waiting
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	client := github.NewClient(rateLimiter)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &GitHubSource{client: client}, nil
}

// Open fetches the content of the file at location.
func (s *GitHubSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	loc, err := ParseGitHubLocation(location)
	if err != nil {
		return nil, err
	}

	fileContent, _, _, err := s.client.Repositories.GetContents(ctx, loc.Owner, loc.Repo, loc.Path, refOptions(loc.Ref))
	if err != nil {
		return nil, classifyGitHubError(location, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, location)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", location, err)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// List recursively lists all files under the directory at location, as
// github:// locations carrying the same ref.
func (s *GitHubSource) List(ctx context.Context, location string) ([]string, error) {
	loc, err := ParseGitHubLocation(location)
	if err != nil {
		return nil, err
	}

	paths, err := s.listRecursive(ctx, loc, loc.Path)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		item := loc
		item.Path = p
		out = append(out, item.String())
	}
	return out, nil
}

// listRecursive recursively traverses directories to find all files.
func (s *GitHubSource) listRecursive(ctx context.Context, loc GitHubLocation, dir string) ([]string, error) {
	fileContent, dirContents, _, err := s.client.Repositories.GetContents(ctx, loc.Owner, loc.Repo, dir, refOptions(loc.Ref))
	if err != nil {
		return nil, classifyGitHubError(loc.String(), err)
	}
	if fileContent != nil {
		return []string{dir}, nil
	}

	var files []string
	for _, item := range dirContents {
		itemPath := path.Join(dir, item.GetName())

		switch item.GetType() {
		case "file":
			files = append(files, itemPath)
		case "dir":
			sub, err := s.listRecursive(ctx, loc, itemPath)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

func refOptions(ref string) *github.RepositoryContentGetOptions {
	if ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: ref}
}

func classifyGitHubError(location string, err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, location)
	}
	return fmt.Errorf("failed to get contents of %s: %w", location, err)
}
