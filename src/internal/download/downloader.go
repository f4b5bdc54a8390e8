// Package download implements the integrity-verified installer download. An
// artifact only ever reaches its final path after its streamed SHA-256
// digest matches the expected value supplied by the caller.
package download

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BenDodCod/projectorsclient-sub001/src/internal/github"
)

const (
	defaultMaxRetries = 3
	defaultRetryWait  = 1 * time.Second
	defaultRetention  = 7 * 24 * time.Hour
	hashChunkSize     = 8 * 1024
)

// Source streams asset bytes into a destination file. Satisfied by
// *github.Client.
type Source interface {
	DownloadFile(url, dest string, progress github.ProgressFunc, resume bool) error
}

// Downloader fetches artifacts into a working directory and verifies them
// before promotion.
type Downloader struct {
	source    Source
	workDir   string
	retention time.Duration
	retryWait time.Duration
	sleep     func(time.Duration)
}

// NewDownloader creates the downloader and runs the startup housekeeping
// pass over the working directory.
func NewDownloader(source Source, workDir string, retentionDays int) (*Downloader, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	retention := defaultRetention
	if retentionDays > 0 {
		retention = time.Duration(retentionDays) * 24 * time.Hour
	}
	d := &Downloader{
		source:    source,
		workDir:   workDir,
		retention: retention,
		retryWait: defaultRetryWait,
		sleep:     time.Sleep,
	}
	d.cleanupWorkDir()
	return d, nil
}

// WorkDir returns the directory verified artifacts are placed in.
func (d *Downloader) WorkDir() string {
	return d.workDir
}

// Request describes one verified download.
type Request struct {
	URL            string
	ExpectedSHA256 string
	Progress       github.ProgressFunc
	Resume         bool
	SkipIfExists   bool
	MaxRetries     int
	// DestFilename overrides the name derived from the URL path.
	DestFilename string
}

// DownloadUpdate fetches the artifact described by req and returns the final
// path of the verified file. The transfer accumulates in a .partial sibling;
// a digest mismatch deletes the partial and consumes one retry. When
// SkipIfExists is set and a verified copy already exists, no network request
// is made at all.
func (d *Downloader) DownloadUpdate(req Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme != "https" {
		return "", fmt.Errorf("refusing non-HTTPS download URL %q", req.URL)
	}

	name := req.DestFilename
	if name == "" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("cannot derive a filename from URL %q", req.URL)
	}

	expected := strings.ToLower(req.ExpectedSHA256)
	dest := filepath.Join(d.workDir, name)

	if req.SkipIfExists {
		if _, err := os.Stat(dest); err == nil {
			digest, err := fileSHA256(dest)
			if err == nil && digest == expected {
				log.Infof("existing %s already matches the expected digest, skipping download", name)
				return dest, nil
			}
			log.Warnf("existing %s failed digest verification, re-downloading", name)
			if err := os.Remove(dest); err != nil {
				return "", fmt.Errorf("failed to remove stale artifact: %w", err)
			}
		}
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	staging := dest + ".partial"
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			// exponential wait between verification retries, doubling per attempt
			d.sleep(d.retryWait * (1 << (attempt - 2)))
		}
		if err := d.source.DownloadFile(req.URL, staging, req.Progress, req.Resume); err != nil {
			lastErr = err
			log.Warnf("download attempt %d/%d failed: %v", attempt, maxRetries, err)
			continue
		}

		digest, err := fileSHA256(staging)
		if err != nil {
			lastErr = fmt.Errorf("failed to hash downloaded file: %w", err)
			continue
		}
		if digest != expected {
			lastErr = fmt.Errorf("checksum mismatch for %s: expected %s, got %s", name, expected, digest)
			log.Warnf("download attempt %d/%d: %v", attempt, maxRetries, lastErr)
			if err := os.Remove(staging); err != nil && !os.IsNotExist(err) {
				log.Warnf("failed to remove corrupt partial file: %v", err)
			}
			continue
		}

		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to replace destination: %w", err)
		}
		if err := os.Rename(staging, dest); err != nil {
			return "", fmt.Errorf("failed to promote verified artifact: %w", err)
		}
		log.Infof("verified %s (sha256 ok) after %d attempt(s)", name, attempt)
		return dest, nil
	}

	return "", fmt.Errorf("download of %s failed after %d attempts: %w", name, maxRetries, lastErr)
}

// fileSHA256 streams the file through the hash in fixed-size chunks so
// memory stays bounded regardless of artifact size.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, hashChunkSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// cleanupWorkDir deletes files older than the retention window to bound
// disk usage. Failures are logged and never fatal.
func (d *Downloader) cleanupWorkDir() {
	entries, err := os.ReadDir(d.workDir)
	if err != nil {
		log.Warnf("failed to scan download directory: %v", err)
		return
	}

	cutoff := time.Now().Add(-d.retention)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.workDir, entry.Name())); err != nil {
			log.Warnf("failed to remove stale download %s: %v", entry.Name(), err)
		} else {
			log.Debugf("removed stale download %s", entry.Name())
		}
	}
}
