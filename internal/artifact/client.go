// SPDX-License-Identifier: MIT

// Package artifact implements the GitHub Actions artifact client behind
// history synchronization. Artifacts arrive and leave as single-entry zip
// archives; the payload inside is the newline-joined sent-ID file.
package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/metrics"
	"github.com/evangelie19/movie-notifier-bot/internal/platform/httpx"
	mnbnet "github.com/evangelie19/movie-notifier-bot/internal/platform/net"
)

const (
	// DefaultAPIBaseURL is the GitHub REST API root.
	DefaultAPIBaseURL = "https://api.github.com"
	// DefaultUploadsBaseURL is the root for artifact uploads.
	DefaultUploadsBaseURL = "https://uploads.github.com"

	userAgent    = "movie-notifier-bot-state"
	acceptGitHub = "application/vnd.github+json"

	listPageSize = 100
	maxErrorBody = 2048

	// maxArchiveBytes bounds how much of an artifact archive is read into
	// memory. Sent-ID files are a few kilobytes; anything near the cap is
	// not ours.
	maxArchiveBytes = 32 << 20
)

// Credentials identify the repository whose artifacts hold the history.
type Credentials struct {
	Owner string
	Repo  string
	Token string
}

// CredentialsFromConfig splits the "owner/repo" form used by
// GITHUB_REPOSITORY.
func CredentialsFromConfig(gh config.GitHubSettings) (Credentials, error) {
	owner, repo, err := config.SplitRepository(gh.Repository)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Owner: owner, Repo: repo, Token: gh.Token}, nil
}

// Client talks to the Artifacts API. Safe for concurrent use.
type Client struct {
	apiBase     string
	uploadsBase string
	creds       Credentials
	http        *http.Client
	logger      zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIBaseURL overrides the REST API root, used by tests.
func WithAPIBaseURL(u string) ClientOption {
	return func(c *Client) { c.apiBase = u }
}

// WithUploadsBaseURL overrides the uploads root, used by tests.
func WithUploadsBaseURL(u string) ClientOption {
	return func(c *Client) { c.uploadsBase = u }
}

// WithHTTPClient injects the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// New builds a Client with the hardened default HTTP client.
func New(creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		apiBase:     DefaultAPIBaseURL,
		uploadsBase: DefaultUploadsBaseURL,
		creds:       creds,
		logger:      log.WithComponent("artifact"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpx.NewClient(httpx.Options{Timeout: 30 * time.Second})
	}
	return c
}

type artifactList struct {
	Artifacts []artifactDescriptor `json:"artifacts"`
}

type artifactDescriptor struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ArchiveDownloadURL string `json:"archive_download_url"`
	Expired            bool   `json:"expired"`
}

// Download fetches the newest non-expired artifact with the given name and
// returns the bytes of its first zip entry. The boolean reports whether a
// matching artifact existed at all; an empty archive yields empty bytes.
func (c *Client) Download(ctx context.Context, name string) ([]byte, bool, error) {
	descriptor, ok, err := c.findArtifact(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	archive, err := c.get(ctx, "download_archive", descriptor.ArchiveDownloadURL)
	if err != nil {
		return nil, false, err
	}

	payload, err := firstZipEntry(archive)
	if err != nil {
		return nil, false, &APIError{Sentinel: ErrBadResponse, Op: "download_archive", Err: err}
	}
	c.logger.Debug().
		Str(log.FieldEvent, "artifact.download.ok").
		Str(log.FieldArtifact, name).
		Int("bytes", len(payload)).
		Msg("artifact downloaded")
	return payload, true, nil
}

// Upload zips content into a single deflate entry named fileName and posts
// it as an artifact called name, replacing nothing; GitHub keeps versions
// apart by run.
func (c *Client) Upload(ctx context.Context, name, fileName string, content []byte) error {
	payload, err := zipPayload(fileName, content)
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Op: "upload_archive", Err: err}
	}

	uploadURL := fmt.Sprintf("%s/repos/%s/%s/actions/artifacts?name=%s&size=%d",
		c.uploadsBase, c.creds.Owner, c.creds.Repo, url.QueryEscape(name), len(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(payload))
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Op: "upload_archive", Err: err}
	}
	req.Header.Set("Content-Type", "application/zip")

	if _, err := c.do(req, "upload_archive"); err != nil {
		return err
	}
	c.logger.Debug().
		Str(log.FieldEvent, "artifact.upload.ok").
		Str(log.FieldArtifact, name).
		Int("bytes", len(content)).
		Msg("artifact uploaded")
	return nil
}

func (c *Client) findArtifact(ctx context.Context, name string) (artifactDescriptor, bool, error) {
	listURL := fmt.Sprintf("%s/repos/%s/%s/actions/artifacts?per_page=%d",
		c.apiBase, c.creds.Owner, c.creds.Repo, listPageSize)

	body, err := c.get(ctx, "list_artifacts", listURL)
	if err != nil {
		return artifactDescriptor{}, false, err
	}

	var list artifactList
	if err := json.Unmarshal(body, &list); err != nil {
		return artifactDescriptor{}, false, &APIError{
			Sentinel: ErrBadResponse,
			Op:       "list_artifacts",
			Err:      fmt.Errorf("decode %s: %w", mnbnet.SanitizeURL(listURL), err),
		}
	}

	for _, a := range list.Artifacts {
		if !a.Expired && a.Name == name {
			return a, true, nil
		}
	}
	return artifactDescriptor{}, false, nil
}

func (c *Client) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Op: op, Err: err}
	}
	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("Accept", acceptGitHub)
	req.Header.Set("User-Agent", userAgent)
	if c.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamRequest("github", 0, time.Since(start))
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{
			Sentinel: ErrUnavailable,
			Op:       op,
			Err:      fmt.Errorf("request %s: %w", mnbnet.SanitizeURL(req.URL.String()), err),
		}
	}
	defer resp.Body.Close()
	metrics.ObserveUpstreamRequest("github", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Sentinel: sentinelFor(resp.StatusCode),
			Op:       op,
			Status:   resp.StatusCode,
			Body:     string(snippet),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes))
	if err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Op: op, Err: err}
	}
	return body, nil
}

// firstZipEntry extracts the first file from an in-memory zip archive. An
// archive with no entries yields empty bytes, matching what an empty
// history round-trips to.
func firstZipEntry(archive []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if len(reader.File) == 0 {
		return []byte{}, nil
	}
	f, err := reader.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %q: %w", reader.File[0].Name, err)
	}
	defer f.Close()
	payload, err := io.ReadAll(io.LimitReader(f, maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("read entry %q: %w", reader.File[0].Name, err)
	}
	return payload, nil
}

func zipPayload(fileName string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	entry, err := w.CreateHeader(&zip.FileHeader{
		Name:   fileName,
		Method: zip.Deflate,
	})
	if err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	if _, err := entry.Write(content); err != nil {
		return nil, fmt.Errorf("write entry: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
