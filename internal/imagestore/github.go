package imagestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// maxImageSize bounds a single enrollment image download.
const maxImageSize = 20 << 20

// APIError is a non-2xx response from the GitHub REST API.
type APIError struct {
	StatusCode int
	Message    string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

type GitHubConfig struct {
	APIURL string // defaults to https://api.github.com
	Token  string
	Repo   string // owner/name
	Branch string // defaults to main
	Prefix string // directory inside the repository
}

// GitHub stores enrollment images in a repository through the contents API.
type GitHub struct {
	apiURL *url.URL
	token  string
	repo   string
	branch string
	prefix string
	client *http.Client
}

func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	if owner, name, ok := strings.Cut(cfg.Repo, "/"); !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("github repo must be owner/name, got %q", cfg.Repo)
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	parsed, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid github api url: %w", err)
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &GitHub{
		apiURL: parsed,
		token:  cfg.Token,
		repo:   cfg.Repo,
		branch: branch,
		prefix: strings.Trim(cfg.Prefix, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (g *GitHub) contentsURL(ref string, withBranch bool) string {
	owner, name, _ := strings.Cut(g.repo, "/")
	u := g.apiURL.JoinPath("repos", owner, name, "contents", path.Join(g.prefix, ref))
	if withBranch {
		u.RawQuery = url.Values{"ref": {g.branch}}.Encode()
	}
	return u.String()
}

func (g *GitHub) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return req, nil
}

// Fetch downloads the raw image bytes, bypassing any HTTP cache.
func (g *GitHub) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}

	req, err := g.newRequest(ctx, http.MethodGet, g.contentsURL(ref, true), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image %s exceeds %d bytes", ref, maxImageSize)
	}
	return data, nil
}

type contentMetadata struct {
	SHA string `json:"sha"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

// Put creates the file or replaces it when it already exists.
func (g *GitHub) Put(ctx context.Context, ref string, data []byte, message string) error {
	if err := validRef(ref); err != nil {
		return err
	}

	sha, err := g.existingSHA(ctx, ref)
	if err != nil {
		return err
	}

	body, err := json.Marshal(putContentRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     sha,
		Branch:  g.branch,
	})
	if err != nil {
		return fmt.Errorf("could not marshal request body: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPut, g.contentsURL(ref, false), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return readAPIError(resp)
	}
	return nil
}

// existingSHA returns the blob sha of ref, or "" when it does not exist yet.
func (g *GitHub) existingSHA(ctx context.Context, ref string) (string, error) {
	req, err := g.newRequest(ctx, http.MethodGet, g.contentsURL(ref, true), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var meta contentMetadata
		if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
			return "", fmt.Errorf("could not decode content metadata: %w", err)
		}
		return meta.SHA, nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", readAPIError(resp)
	}
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		msg = payload.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
