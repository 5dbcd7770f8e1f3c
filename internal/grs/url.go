package grs

import (
	"fmt"
	"strings"
)

// ErrInvalidRepoURL is returned when a repository locator does not look
// like a GitHub repository URL. It is the only error the service
// surfaces synchronously before touching any state.
type ErrInvalidRepoURL struct {
	URL string
}

func (e *ErrInvalidRepoURL) Error() string {
	return fmt.Sprintf("invalid repository URL: %q, expected https://github.com/owner/repo", e.URL)
}

// ValidateRepoURL reports whether url looks like a GitHub repository.
// Accepted forms:
//
//	https://github.com/owner/repo
//	https://github.com/owner/repo/
//	https://github.com/owner/repo.git
//
// Comment lines (leading '#') are rejected so batch files can carry
// annotations.
func ValidateRepoURL(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" || strings.HasPrefix(url, "#") {
		return false
	}
	if !strings.HasPrefix(url, "https://github.com/") && !strings.HasPrefix(url, "http://github.com/") {
		return false
	}

	path := url[strings.Index(url, "github.com/")+len("github.com/"):]
	path = strings.TrimRight(path, "/")
	path = strings.TrimSuffix(path, ".git")

	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return false
	}
	owner, repo := parts[0], parts[1]
	if owner == "" || repo == "" {
		return false
	}

	for _, c := range repo {
		if !isRepoNameChar(c) {
			return false
		}
	}
	return true
}

func isRepoNameChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.':
		return true
	}
	return false
}

// NormalizeRepoURL canonicalizes a repository URL: whitespace trimmed,
// trailing slashes dropped, ".git" suffix enforced. The result is the
// store key for the repository.
func NormalizeRepoURL(url string) string {
	url = strings.TrimSpace(url)
	url = strings.TrimRight(url, "/")
	if !strings.HasSuffix(url, ".git") {
		url += ".git"
	}
	return url
}

// SplitOwnerRepo extracts the owner and bare repository name from a
// GitHub URL. The second return is false when the URL has no owner/repo
// path.
func SplitOwnerRepo(url string) (owner, repo string, ok bool) {
	path := strings.TrimPrefix(url, "https://github.com/")
	path = strings.TrimPrefix(path, "http://github.com/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}

// RepoDirName returns the directory name the local mirror uses, e.g.
// "https://github.com/u/repo.git" -> "repo.git".
func RepoDirName(url string) string {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
