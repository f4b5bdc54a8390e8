// Package update ties the release source, rollout gate and verified
// downloader together: it decides whether a check is due, runs the check
// sequence, and stages the verified installer for the host to launch.
package update

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BenDodCod/projectorsclient-sub001/src/internal/download"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/github"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/semver"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/settings"
	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

// ReleaseSource is the metadata and text-asset surface the orchestrator
// needs. Satisfied by *github.Client.
type ReleaseSource interface {
	GetLatestRelease() (*models.Release, error)
	DownloadText(url string) (string, error)
}

// RolloutGate evaluates staged-rollout membership for a candidate version.
// Satisfied by *rollout.Gate.
type RolloutGate interface {
	FetchConfig(release *models.Release) models.RolloutConfig
	Evaluate(cfg models.RolloutConfig, current, candidate semver.Version) bool
}

// InstallerDownloader performs the integrity-verified artifact download.
// Satisfied by *download.Downloader.
type InstallerDownloader interface {
	DownloadUpdate(req download.Request) (string, error)
}

// Conventional checksum manifest asset names, tried in order.
var checksumAssetNames = []string{"checksums.txt", "SHA256SUMS", "sha256sums.txt"}

var hexDigestRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Orchestrator runs the update check sequence. Construct one per host; it
// holds no hidden process-wide state.
type Orchestrator struct {
	settings   settings.Store
	source     ReleaseSource
	gate       RolloutGate
	downloader InstallerDownloader
	current    semver.Version
	checkCfg   models.CheckConfig
	dlConfig   models.DownloadConfig
}

// NewOrchestrator wires the collaborators together. currentVersion is the
// running application version and must parse. checkCfg supplies the
// scheduling values used when the settings store holds no explicit
// user preference.
func NewOrchestrator(st settings.Store, src ReleaseSource, gate RolloutGate, dl InstallerDownloader, currentVersion string, checkCfg models.CheckConfig, dlConfig models.DownloadConfig) (*Orchestrator, error) {
	current, err := semver.Parse(currentVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid current version: %w", err)
	}
	return &Orchestrator{
		settings:   st,
		source:     src,
		gate:       gate,
		downloader: dl,
		current:    current,
		checkCfg:   checkCfg,
		dlConfig:   dlConfig,
	}, nil
}

// CurrentVersion returns the parsed running version.
func (o *Orchestrator) CurrentVersion() semver.Version {
	return o.current
}

// ShouldCheckNow reports whether enough wall-clock time has passed since the
// last check. The configured scheduling values act as defaults and a stored
// user preference overrides them. Checking disabled wins over everything; an
// interval of zero means "always check".
func (o *Orchestrator) ShouldCheckNow() bool {
	if !o.settings.GetBool(settings.KeyCheckEnabled, o.checkCfg.Enabled) {
		return false
	}
	interval := o.settings.GetInt(settings.KeyCheckIntervalHours, o.checkCfg.IntervalHours)
	if interval <= 0 {
		return true
	}
	last := o.settings.GetFloat(settings.KeyLastCheckTimestamp, 0)
	if last == 0 {
		return true
	}
	elapsed := time.Since(time.Unix(int64(last), 0))
	return elapsed.Hours() >= float64(interval)
}

// CheckForUpdates runs one full check: fetch, compare, skip filter, rollout
// gate, installer resolve, checksum resolve. It always returns a tagged
// result and never panics across the boundary.
func (o *Orchestrator) CheckForUpdates() models.UpdateCheckResult {
	// Persist the timestamp before anything can fail so retry timing
	// advances regardless of the outcome.
	if err := o.settings.Set(settings.KeyLastCheckTimestamp, float64(time.Now().Unix())); err != nil {
		log.Warnf("failed to persist last check timestamp: %v", err)
	}

	release, err := o.source.GetLatestRelease()
	if err != nil {
		log.Warnf("update check could not reach the release API: %v", err)
		return models.CheckError("could not reach the update server")
	}
	if release == nil {
		return models.CheckError("no release information available")
	}

	candidate, err := semver.Parse(release.TagName)
	if err != nil {
		log.Warnf("release has malformed version tag %q: %v", release.TagName, err)
		return models.CheckError(fmt.Sprintf("malformed release version %q", release.TagName))
	}

	if !candidate.GreaterThan(o.current) {
		log.Debugf("latest release %s is not newer than %s", candidate, o.current)
		return models.NotAvailable()
	}

	if o.isSkipped(candidate) {
		log.Infof("version %s was skipped by the user", candidate)
		return models.NotAvailable()
	}

	cfg := o.gate.FetchConfig(release)
	if !o.gate.Evaluate(cfg, o.current, candidate) {
		log.Infof("installation is outside the %d%% rollout for %s", cfg.RolloutPercentage, candidate)
		return models.NotAvailable()
	}

	installer := resolveInstallerAsset(release)
	if installer == nil {
		return models.CheckError("release has no installer asset")
	}

	digest, err := o.resolveChecksum(release, installer.Name)
	if err != nil {
		log.Warnf("checksum resolution failed for %s: %v", installer.Name, err)
		return models.CheckError("could not resolve the installer checksum")
	}

	return models.Available(candidate.String(), release.Body, installer.BrowserDownloadURL, digest)
}

// StageInstaller downloads and verifies the installer for an Available
// result, then records its path in the pending-installer slot for the
// launch collaborator to consume.
func (o *Orchestrator) StageInstaller(result models.UpdateCheckResult, progress github.ProgressFunc) (string, error) {
	if result.Outcome != models.OutcomeAvailable {
		return "", fmt.Errorf("no update available to stage")
	}

	path, err := o.downloader.DownloadUpdate(download.Request{
		URL:            result.DownloadURL,
		ExpectedSHA256: result.SHA256,
		Progress:       progress,
		Resume:         o.dlConfig.Resume,
		SkipIfExists:   o.dlConfig.SkipIfExists,
		MaxRetries:     o.dlConfig.MaxRetries,
	})
	if err != nil {
		return "", err
	}

	if err := o.settings.Set(settings.KeyPendingInstallerPath, path); err != nil {
		log.Warnf("failed to record pending installer path: %v", err)
	}
	return path, nil
}

// SkipVersion records the version so future checks ignore it. The canonical
// rendering is stored, so "v2.1" and "2.1.0" collapse to one entry.
func (o *Orchestrator) SkipVersion(version string) error {
	v, err := semver.Parse(version)
	if err != nil {
		return fmt.Errorf("cannot skip malformed version: %w", err)
	}

	raw := o.settings.GetString(settings.KeySkippedVersions, "[]")
	var skipped []string
	if err := json.Unmarshal([]byte(raw), &skipped); err != nil {
		skipped = nil
	}

	canonical := v.String()
	for _, s := range skipped {
		if s == canonical {
			return nil
		}
	}
	skipped = append(skipped, canonical)

	data, err := json.Marshal(skipped)
	if err != nil {
		return fmt.Errorf("failed to marshal skipped versions: %w", err)
	}
	return o.settings.Set(settings.KeySkippedVersions, string(data))
}

// isSkipped reads the persisted skipped-versions list. A malformed list is
// treated as empty, not as an error.
func (o *Orchestrator) isSkipped(candidate semver.Version) bool {
	raw := o.settings.GetString(settings.KeySkippedVersions, "[]")
	var skipped []string
	if err := json.Unmarshal([]byte(raw), &skipped); err != nil {
		log.Debugf("skipped versions list is malformed, treating as empty: %v", err)
		return false
	}
	for _, s := range skipped {
		if v, err := semver.Parse(s); err == nil && v.Equal(candidate) {
			return true
		}
	}
	return false
}

// resolveInstallerAsset prefers a .exe asset and falls back to .msi. First
// match wins; a per-architecture tie-break is not defined upstream.
func resolveInstallerAsset(release *models.Release) *models.Asset {
	for _, ext := range []string{".exe", ".msi"} {
		for i := range release.Assets {
			if strings.HasSuffix(strings.ToLower(release.Assets[i].Name), ext) {
				return &release.Assets[i]
			}
		}
	}
	return nil
}

// resolveChecksum locates the checksum manifest among the conventional asset
// names and returns the digest recorded for the installer filename.
func (o *Orchestrator) resolveChecksum(release *models.Release, installerName string) (string, error) {
	var manifest *models.Asset
	for _, name := range checksumAssetNames {
		if a := release.FindAsset(name); a != nil {
			manifest = a
			break
		}
	}
	if manifest == nil {
		return "", fmt.Errorf("release has no checksum manifest (tried %s)", strings.Join(checksumAssetNames, ", "))
	}

	text, err := o.source.DownloadText(manifest.BrowserDownloadURL)
	if err != nil {
		return "", fmt.Errorf("failed to download checksum manifest: %w", err)
	}

	digest, ok := digestForFile(text, installerName)
	if !ok {
		return "", fmt.Errorf("no checksum entry for %s in %s", installerName, manifest.Name)
	}
	if !hexDigestRegex.MatchString(digest) {
		return "", fmt.Errorf("checksum entry for %s is not a 64-character hex digest", installerName)
	}
	return digest, nil
}

// digestForFile parses "<digest> <filename>" manifest lines. Blank lines and
// #-comments are ignored, a leading * binary marker on the filename is
// tolerated, and the filename match is case-insensitive.
func digestForFile(manifest, filename string) (string, bool) {
	for _, line := range strings.Split(manifest, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimPrefix(fields[len(fields)-1], "*")
		if strings.EqualFold(name, filename) {
			return fields[0], true
		}
	}
	return "", false
}
