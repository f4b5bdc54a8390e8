// Package rollout assigns each installation a stable identity and a
// deterministic bucket, and evaluates a release's staged-rollout policy
// against it. Broken or missing remote configuration always fails open to a
// full rollout, never closed.
package rollout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/BenDodCod/projectorsclient-sub001/src/internal/semver"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/settings"
	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

// ConfigAssetName is the conventional name of the rollout policy asset
// attached to a release.
const ConfigAssetName = "rollout.json"

// DefaultPercentage is the fail-open rollout percentage applied whenever the
// remote policy is absent or invalid.
const DefaultPercentage = 100

// Source provides the release metadata and text assets the gate needs.
// Satisfied by *github.Client.
type Source interface {
	GetLatestRelease() (*models.Release, error)
	DownloadText(url string) (string, error)
}

// Gate decides rollout membership for this installation.
type Gate struct {
	settings settings.Store
	source   Source

	mu       sync.Mutex
	identity string
}

// NewGate creates a rollout gate backed by the given settings store and
// release source.
func NewGate(st settings.Store, src Source) *Gate {
	return &Gate{settings: st, source: src}
}

// identityString returns the installation identity, generating and
// persisting a fresh UUID on first use. The literal value is never logged.
func (g *Gate) identityString() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.identity != "" {
		return g.identity, nil
	}

	id := g.settings.GetString(settings.KeyRolloutGroupID, "")
	if id == "" {
		id = uuid.NewString()
		if err := g.settings.Set(settings.KeyRolloutGroupID, id); err != nil {
			return "", fmt.Errorf("failed to persist rollout group id: %w", err)
		}
		log.Info("generated new rollout group identity")
	}
	g.identity = id
	return id, nil
}

// Bucket returns the deterministic rollout bucket in [0, 99]: the first
// eight hex digits of SHA-256(identity), mod 100.
func (g *Gate) Bucket() (int, error) {
	id, err := g.identityString()
	if err != nil {
		return 0, err
	}
	sum := sha256.Sum256([]byte(id))
	prefix := hex.EncodeToString(sum[:])[:8]
	n, err := strconv.ParseUint(prefix, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse bucket prefix: %w", err)
	}
	return int(n % 100), nil
}

// InRolloutGroup reports whether this installation falls inside a rollout at
// the given percentage. Inclusion is monotonic: in-group at p implies
// in-group at any higher percentage.
func (g *Gate) InRolloutGroup(percentage int) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	bucket, err := g.Bucket()
	if err != nil {
		log.Warnf("failed to compute rollout bucket, failing open: %v", err)
		return true
	}
	return bucket < percentage
}

// FetchConfig locates the rollout policy asset on the release and parses it.
// When release is nil the latest release is fetched first. Every failure
// path degrades to the fail-open default.
func (g *Gate) FetchConfig(release *models.Release) models.RolloutConfig {
	def := models.RolloutConfig{RolloutPercentage: DefaultPercentage}

	if release == nil {
		rel, err := g.source.GetLatestRelease()
		if err != nil || rel == nil {
			log.Warn("could not fetch release for rollout config, failing open")
			return def
		}
		release = rel
	}

	asset := release.FindAsset(ConfigAssetName)
	if asset == nil {
		log.Debugf("release has no %s asset, using default rollout", ConfigAssetName)
		return def
	}

	text, err := g.source.DownloadText(asset.BrowserDownloadURL)
	if err != nil {
		log.Warnf("failed to download rollout config, failing open: %v", err)
		return def
	}

	var raw struct {
		Version           string   `json:"version"`
		RolloutPercentage *int     `json:"rollout_percentage"`
		MinVersion        string   `json:"min_version"`
		BlockVersions     []string `json:"block_versions"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		log.Warnf("rollout config is not valid JSON, failing open: %v", err)
		return def
	}
	if raw.RolloutPercentage == nil {
		log.Warn("rollout config is missing rollout_percentage, failing open")
		return def
	}
	if *raw.RolloutPercentage < 0 || *raw.RolloutPercentage > 100 {
		log.Warnf("rollout percentage %d out of range, failing open", *raw.RolloutPercentage)
		return def
	}

	return models.RolloutConfig{
		Version:           raw.Version,
		RolloutPercentage: *raw.RolloutPercentage,
		MinVersion:        raw.MinVersion,
		BlockVersions:     raw.BlockVersions,
	}
}

// Evaluate applies the full policy for a candidate version. Candidates on
// the block list are never offered; a current version below min_version
// bypasses the percentage gate so critically outdated installations always
// update.
func (g *Gate) Evaluate(cfg models.RolloutConfig, current, candidate semver.Version) bool {
	for _, blocked := range cfg.BlockVersions {
		if v, err := semver.Parse(blocked); err == nil && v.Equal(candidate) {
			log.Infof("version %s is blocked by rollout config", candidate)
			return false
		}
	}
	if cfg.MinVersion != "" {
		if minVer, err := semver.Parse(cfg.MinVersion); err == nil && current.LessThan(minVer) {
			return true
		}
	}
	return g.InRolloutGroup(cfg.RolloutPercentage)
}
