// Package github is the release source: it fetches release metadata from the
// GitHub releases API and streams asset downloads with retry and resume
// support.
package github

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

const (
	defaultAPIBase = "https://api.github.com"

	requestTimeout = 10 * time.Second
	maxAttempts    = 3
	chunkSize      = 8 * 1024
)

// ProgressFunc receives the running byte count and the total transfer size.
// It is only invoked when the total size is known.
type ProgressFunc func(downloaded, total int64)

// Client handles GitHub API interactions for a single release repository.
type Client struct {
	apiBase    string
	owner      string
	repo       string
	token      string
	httpClient *http.Client
}

// NewClient creates a release source for owner/repo. The token is optional
// and only raises the API rate limit.
func NewClient(apiBase, owner, repo, token string) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		apiBase: apiBase,
		owner:   owner,
		repo:    repo,
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// newBackOff builds the shared retry policy: up to maxAttempts attempts with
// exponential waits starting at one second.
func (c *Client) newBackOff() backoff.BackOff {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     1 * time.Second,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         4 * time.Second,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	bo.Reset()
	return backoff.WithMaxRetries(bo, maxAttempts-1)
}

// GetLatestRelease fetches the latest release for the configured repository.
//
// A nil release with a nil error means "no release this cycle": the
// repository has no published release, the rate limit is exhausted, the
// server answered with an unexpected status, or the body could not be
// decoded. None of those are retried. Only network failures that survive the
// retry budget are returned as an error.
func (c *Client) GetLatestRelease() (*models.Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.apiBase, c.owner, c.repo)

	var release *models.Release
	operation := func() error {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		c.setAPIHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Debugf("release fetch attempt failed: %v", err)
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to decode
		case resp.StatusCode == http.StatusNotFound:
			log.Info("no published release found")
			return nil
		case resp.StatusCode == http.StatusForbidden && rateLimited(resp):
			log.Warn("release API rate limit exhausted, skipping this cycle")
			return nil
		default:
			log.Warnf("release API returned unexpected status %d", resp.StatusCode)
			return nil
		}

		var rel models.Release
		if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
			log.Warnf("failed to decode release response: %v", err)
			return nil
		}
		release = &rel
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff()); err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	return release, nil
}

// DownloadFile streams rawURL into dest, accumulating bytes in a
// <dest>.partial sibling. When resume is set and a partial file exists, the
// transfer continues with a Range request; a 200 answer to that request means
// the server ignored the range and the transfer restarts from zero. The
// destination is only replaced once the transfer has fully completed.
func (c *Client) DownloadFile(rawURL, dest string, progress ProgressFunc, resume bool) error {
	if err := requireHTTPS(rawURL); err != nil {
		return err
	}

	operation := func() error {
		return c.downloadOnce(rawURL, dest, progress, resume)
	}
	if err := backoff.Retry(operation, c.newBackOff()); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}

func (c *Client) downloadOnce(rawURL, dest string, progress ProgressFunc, resume bool) error {
	partial := dest + ".partial"

	var offset int64
	if resume {
		if fi, err := os.Stat(partial); err == nil {
			offset = fi.Size()
		}
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/octet-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// range honored, keep appending
	case http.StatusOK:
		if offset > 0 {
			log.Debug("server ignored range request, restarting download from zero")
		}
		offset = 0
	default:
		return backoff.Permanent(fmt.Errorf("download failed with status %s", resp.Status))
	}

	if err := os.MkdirAll(filepath.Dir(partial), 0755); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create download directory: %w", err))
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partial, flags, 0644)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to open partial file: %w", err))
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	downloaded := offset
	buffer := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, writeErr := out.Write(buffer[:n]); writeErr != nil {
				out.Close()
				return backoff.Permanent(fmt.Errorf("failed to write partial file: %w", writeErr))
			}
			downloaded += int64(n)
			if progress != nil && total > 0 {
				progress(downloaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// the partial file is kept so a resumed attempt can pick it up
			out.Close()
			return fmt.Errorf("failed to read response body: %w", readErr)
		}
	}
	if err := out.Close(); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to finish partial file: %w", err))
	}

	// remove-then-rename: plain rename onto an existing file fails on Windows
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return backoff.Permanent(fmt.Errorf("failed to replace destination: %w", err))
	}
	if err := os.Rename(partial, dest); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to promote partial file: %w", err))
	}
	return nil
}

// DownloadText fetches a small text asset such as a checksum manifest or a
// rollout config. Same retry policy as metadata requests, no resume.
func (c *Client) DownloadText(rawURL string) (string, error) {
	if err := requireHTTPS(rawURL); err != nil {
		return "", err
	}

	var body string
	operation := func() error {
		req, err := http.NewRequest(http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("text download failed with status %s", resp.Status))
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff()); err != nil {
		return "", fmt.Errorf("failed to download text asset: %w", err)
	}
	return body, nil
}

func (c *Client) setAPIHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func rateLimited(resp *http.Response) bool {
	return resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func requireHTTPS(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid download URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("refusing non-HTTPS download URL %q", rawURL)
	}
	return nil
}
