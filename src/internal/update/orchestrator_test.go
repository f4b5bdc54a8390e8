package update

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenDodCod/projectorsclient-sub001/src/internal/download"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/semver"
	"github.com/BenDodCod/projectorsclient-sub001/src/internal/settings"
	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

const testDigest = "aabbccddaabbccddaabbccddaabbccddaabbccddaabbccddaabbccddaabbccdd"

type memStore struct {
	values map[string]any
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]any)}
}

func (s *memStore) GetBool(key string, def bool) bool {
	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return def
}

func (s *memStore) GetInt(key string, def int) int {
	if v, ok := s.values[key].(int); ok {
		return v
	}
	return def
}

func (s *memStore) GetFloat(key string, def float64) float64 {
	if v, ok := s.values[key].(float64); ok {
		return v
	}
	return def
}

func (s *memStore) GetString(key string, def string) string {
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return def
}

func (s *memStore) Set(key string, value any) error {
	s.values[key] = value
	return nil
}

type fakeSource struct {
	release *models.Release
	relErr  error
	texts   map[string]string
}

func (f *fakeSource) GetLatestRelease() (*models.Release, error) {
	return f.release, f.relErr
}

func (f *fakeSource) DownloadText(url string) (string, error) {
	if text, ok := f.texts[url]; ok {
		return text, nil
	}
	return "", errors.New("no such asset")
}

// allowAllGate admits every installation; denyGate admits none.
type allowAllGate struct{}

func (allowAllGate) FetchConfig(*models.Release) models.RolloutConfig {
	return models.RolloutConfig{RolloutPercentage: 100}
}

func (allowAllGate) Evaluate(models.RolloutConfig, semver.Version, semver.Version) bool {
	return true
}

type denyGate struct{}

func (denyGate) FetchConfig(*models.Release) models.RolloutConfig {
	return models.RolloutConfig{RolloutPercentage: 10}
}

func (denyGate) Evaluate(models.RolloutConfig, semver.Version, semver.Version) bool {
	return false
}

type fakeDownloader struct {
	path  string
	err   error
	calls int
	last  download.Request
}

func (f *fakeDownloader) DownloadUpdate(req download.Request) (string, error) {
	f.calls++
	f.last = req
	return f.path, f.err
}

func testRelease(tag string) *models.Release {
	return &models.Release{
		TagName: tag,
		Body:    "release notes",
		Assets: []models.Asset{
			{Name: "app-setup.exe", BrowserDownloadURL: "https://example.com/app-setup.exe"},
			{Name: "checksums.txt", BrowserDownloadURL: "https://example.com/checksums.txt"},
		},
	}
}

func newTestOrchestrator(t *testing.T, store settings.Store, src ReleaseSource, gate RolloutGate, dl InstallerDownloader) *Orchestrator {
	t.Helper()
	checkCfg := models.CheckConfig{Enabled: true, IntervalHours: 24}
	o, err := NewOrchestrator(store, src, gate, dl, "1.0.0", checkCfg, models.DownloadConfig{MaxRetries: 3})
	require.NoError(t, err)
	return o
}

func TestCheckForUpdatesAvailable(t *testing.T) {
	src := &fakeSource{
		release: testRelease("v2.2.0"),
		texts: map[string]string{
			"https://example.com/checksums.txt": fmt.Sprintf("%s  app-setup.exe\n", testDigest),
		},
	}
	o := newTestOrchestrator(t, newMemStore(), src, allowAllGate{}, &fakeDownloader{})

	result := o.CheckForUpdates()
	require.Equal(t, models.OutcomeAvailable, result.Outcome)
	assert.Equal(t, "2.2.0", result.Version)
	assert.Equal(t, "release notes", result.ReleaseNotes)
	assert.Equal(t, "https://example.com/app-setup.exe", result.DownloadURL)
	assert.Equal(t, testDigest, result.SHA256)
}

func TestCheckForUpdatesTimestampAdvancesOnFailure(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{relErr: errors.New("network down")}
	o := newTestOrchestrator(t, store, src, allowAllGate{}, &fakeDownloader{})

	before := time.Now().Unix()
	result := o.CheckForUpdates()

	assert.Equal(t, models.OutcomeError, result.Outcome)
	ts := store.GetFloat(settings.KeyLastCheckTimestamp, 0)
	assert.GreaterOrEqual(t, ts, float64(before), "timestamp must advance even when the fetch fails")
}

func TestCheckForUpdatesNoRelease(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), &fakeSource{}, allowAllGate{}, &fakeDownloader{})
	assert.Equal(t, models.OutcomeError, o.CheckForUpdates().Outcome)
}

func TestCheckForUpdatesMalformedTag(t *testing.T) {
	src := &fakeSource{release: testRelease("not-a-version")}
	o := newTestOrchestrator(t, newMemStore(), src, allowAllGate{}, &fakeDownloader{})

	result := o.CheckForUpdates()
	assert.Equal(t, models.OutcomeError, result.Outcome)
	assert.Contains(t, result.Message, "not-a-version")
}

func TestCheckForUpdatesNotNewer(t *testing.T) {
	for _, tag := range []string{"v1.0.0", "v0.9.0", "v1.0.0-rc1"} {
		src := &fakeSource{release: testRelease(tag)}
		o := newTestOrchestrator(t, newMemStore(), src, allowAllGate{}, &fakeDownloader{})
		assert.Equal(t, models.OutcomeNotAvailable, o.CheckForUpdates().Outcome, "tag %s", tag)
	}
}

func TestCheckForUpdatesSkippedThenNewerVersion(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Set(settings.KeySkippedVersions, `["2.1.0"]`))

	src := &fakeSource{
		release: testRelease("v2.1.0"),
		texts: map[string]string{
			"https://example.com/checksums.txt": fmt.Sprintf("%s  app-setup.exe\n", testDigest),
		},
	}
	o := newTestOrchestrator(t, store, src, allowAllGate{}, &fakeDownloader{})

	assert.Equal(t, models.OutcomeNotAvailable, o.CheckForUpdates().Outcome)

	// a later release that is not on the skip list goes through
	src.release = testRelease("v2.2.0")
	result := o.CheckForUpdates()
	require.Equal(t, models.OutcomeAvailable, result.Outcome)
	assert.Equal(t, "2.2.0", result.Version)
}

func TestCheckForUpdatesMalformedSkipListIgnored(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Set(settings.KeySkippedVersions, `{broken`))

	src := &fakeSource{
		release: testRelease("v2.2.0"),
		texts: map[string]string{
			"https://example.com/checksums.txt": fmt.Sprintf("%s  app-setup.exe\n", testDigest),
		},
	}
	o := newTestOrchestrator(t, store, src, allowAllGate{}, &fakeDownloader{})
	assert.Equal(t, models.OutcomeAvailable, o.CheckForUpdates().Outcome)
}

func TestCheckForUpdatesOutsideRollout(t *testing.T) {
	src := &fakeSource{release: testRelease("v2.2.0")}
	o := newTestOrchestrator(t, newMemStore(), src, denyGate{}, &fakeDownloader{})
	assert.Equal(t, models.OutcomeNotAvailable, o.CheckForUpdates().Outcome)
}

func TestCheckForUpdatesMSIFallback(t *testing.T) {
	release := &models.Release{
		TagName: "v2.2.0",
		Assets: []models.Asset{
			{Name: "App-Setup.MSI", BrowserDownloadURL: "https://example.com/App-Setup.MSI"},
			{Name: "checksums.txt", BrowserDownloadURL: "https://example.com/checksums.txt"},
		},
	}
	src := &fakeSource{
		release: release,
		texts: map[string]string{
			"https://example.com/checksums.txt": fmt.Sprintf("%s  app-setup.msi\n", testDigest),
		},
	}
	o := newTestOrchestrator(t, newMemStore(), src, allowAllGate{}, &fakeDownloader{})

	result := o.CheckForUpdates()
	require.Equal(t, models.OutcomeAvailable, result.Outcome)
	assert.Equal(t, "https://example.com/App-Setup.MSI", result.DownloadURL)
}

func TestCheckForUpdatesNoInstallerAsset(t *testing.T) {
	release := &models.Release{
		TagName: "v2.2.0",
		Assets:  []models.Asset{{Name: "release-notes.pdf"}},
	}
	o := newTestOrchestrator(t, newMemStore(), &fakeSource{release: release}, allowAllGate{}, &fakeDownloader{})
	assert.Equal(t, models.OutcomeError, o.CheckForUpdates().Outcome)
}

func TestCheckForUpdatesMissingChecksumManifest(t *testing.T) {
	release := &models.Release{
		TagName: "v2.2.0",
		Assets:  []models.Asset{{Name: "app-setup.exe", BrowserDownloadURL: "https://example.com/app-setup.exe"}},
	}
	o := newTestOrchestrator(t, newMemStore(), &fakeSource{release: release}, allowAllGate{}, &fakeDownloader{})
	assert.Equal(t, models.OutcomeError, o.CheckForUpdates().Outcome)
}

func TestCheckForUpdatesMalformedDigest(t *testing.T) {
	src := &fakeSource{
		release: testRelease("v2.2.0"),
		texts: map[string]string{
			"https://example.com/checksums.txt": "deadbeef  app-setup.exe\n",
		},
	}
	o := newTestOrchestrator(t, newMemStore(), src, allowAllGate{}, &fakeDownloader{})
	assert.Equal(t, models.OutcomeError, o.CheckForUpdates().Outcome)
}

func TestDigestForFile(t *testing.T) {
	manifest := strings.Join([]string{
		"# build 1234 checksums",
		"",
		testDigest + "  App-Setup.EXE",
		strings.Repeat("ff", 32) + " *other-tool.exe",
	}, "\n")

	digest, ok := digestForFile(manifest, "app-setup.exe")
	require.True(t, ok, "filename match is case-insensitive")
	assert.Equal(t, testDigest, digest)

	digest, ok = digestForFile(manifest, "other-tool.exe")
	require.True(t, ok, "leading * binary marker is tolerated")
	assert.Equal(t, strings.Repeat("ff", 32), digest)

	_, ok = digestForFile(manifest, "absent.exe")
	assert.False(t, ok)
}

func TestShouldCheckNow(t *testing.T) {
	src := &fakeSource{}
	dl := &fakeDownloader{}

	t.Run("disabled wins", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Set(settings.KeyCheckEnabled, false))
		o := newTestOrchestrator(t, store, src, allowAllGate{}, dl)
		assert.False(t, o.ShouldCheckNow())
	})

	t.Run("zero interval always checks", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Set(settings.KeyCheckIntervalHours, 0))
		require.NoError(t, store.Set(settings.KeyLastCheckTimestamp, float64(time.Now().Unix())))
		o := newTestOrchestrator(t, store, src, allowAllGate{}, dl)
		assert.True(t, o.ShouldCheckNow())
	})

	t.Run("no prior check", func(t *testing.T) {
		o := newTestOrchestrator(t, newMemStore(), src, allowAllGate{}, dl)
		assert.True(t, o.ShouldCheckNow())
	})

	t.Run("recent check not due", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Set(settings.KeyCheckIntervalHours, 24))
		require.NoError(t, store.Set(settings.KeyLastCheckTimestamp, float64(time.Now().Add(-time.Hour).Unix())))
		o := newTestOrchestrator(t, store, src, allowAllGate{}, dl)
		assert.False(t, o.ShouldCheckNow())
	})

	t.Run("stale check due", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Set(settings.KeyCheckIntervalHours, 24))
		require.NoError(t, store.Set(settings.KeyLastCheckTimestamp, float64(time.Now().Add(-25*time.Hour).Unix())))
		o := newTestOrchestrator(t, store, src, allowAllGate{}, dl)
		assert.True(t, o.ShouldCheckNow())
	})
}

func TestShouldCheckNowConfigDefaults(t *testing.T) {
	src := &fakeSource{}
	dl := &fakeDownloader{}

	newOrchestrator := func(t *testing.T, store settings.Store, checkCfg models.CheckConfig) *Orchestrator {
		t.Helper()
		o, err := NewOrchestrator(store, src, allowAllGate{}, dl, "1.0.0", checkCfg, models.DownloadConfig{})
		require.NoError(t, err)
		return o
	}

	t.Run("config disables checks on a fresh store", func(t *testing.T) {
		o := newOrchestrator(t, newMemStore(), models.CheckConfig{Enabled: false, IntervalHours: 24})
		assert.False(t, o.ShouldCheckNow())
	})

	t.Run("stored preference overrides the config", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Set(settings.KeyCheckEnabled, true))
		o := newOrchestrator(t, store, models.CheckConfig{Enabled: false, IntervalHours: 24})
		assert.True(t, o.ShouldCheckNow())
	})

	t.Run("config interval applies without a stored one", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Set(settings.KeyLastCheckTimestamp, float64(time.Now().Add(-2*time.Hour).Unix())))
		o := newOrchestrator(t, store, models.CheckConfig{Enabled: true, IntervalHours: 1})
		assert.True(t, o.ShouldCheckNow())

		o = newOrchestrator(t, store, models.CheckConfig{Enabled: true, IntervalHours: 6})
		assert.False(t, o.ShouldCheckNow())
	})
}

func TestStageInstaller(t *testing.T) {
	store := newMemStore()
	dl := &fakeDownloader{path: "/updates/app-setup.exe"}
	o := newTestOrchestrator(t, store, &fakeSource{}, allowAllGate{}, dl)

	result := models.Available("2.2.0", "", "https://example.com/app-setup.exe", testDigest)
	path, err := o.StageInstaller(result, nil)
	require.NoError(t, err)

	assert.Equal(t, "/updates/app-setup.exe", path)
	assert.Equal(t, testDigest, dl.last.ExpectedSHA256)
	assert.Equal(t, 3, dl.last.MaxRetries)
	assert.Equal(t, "/updates/app-setup.exe", store.GetString(settings.KeyPendingInstallerPath, ""))
}

func TestStageInstallerRequiresAvailableResult(t *testing.T) {
	dl := &fakeDownloader{}
	o := newTestOrchestrator(t, newMemStore(), &fakeSource{}, allowAllGate{}, dl)

	_, err := o.StageInstaller(models.NotAvailable(), nil)
	require.Error(t, err)
	assert.Equal(t, 0, dl.calls)
}

func TestSkipVersionCanonicalizes(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, &fakeSource{}, allowAllGate{}, &fakeDownloader{})

	require.NoError(t, o.SkipVersion("v2.1"))
	require.NoError(t, o.SkipVersion("2.1.0")) // duplicate collapses

	assert.Equal(t, `["2.1.0"]`, store.GetString(settings.KeySkippedVersions, ""))

	require.Error(t, o.SkipVersion("garbage"))
}
