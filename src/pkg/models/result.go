package models

// UpdateOutcome tags an UpdateCheckResult.
type UpdateOutcome string

const (
	OutcomeAvailable    UpdateOutcome = "available"
	OutcomeNotAvailable UpdateOutcome = "not_available"
	OutcomeError        UpdateOutcome = "error"
)

// UpdateCheckResult is the single tagged value produced by one orchestrator
// run. The host renders user-facing messages from this value; raw transport
// errors never cross the boundary.
type UpdateCheckResult struct {
	Outcome      UpdateOutcome `json:"outcome"`
	Version      string        `json:"version,omitempty"`
	ReleaseNotes string        `json:"release_notes,omitempty"`
	DownloadURL  string        `json:"download_url,omitempty"`
	SHA256       string        `json:"sha256,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// Available builds a result describing an update ready to download.
func Available(version, notes, downloadURL, sha256 string) UpdateCheckResult {
	return UpdateCheckResult{
		Outcome:      OutcomeAvailable,
		Version:      version,
		ReleaseNotes: notes,
		DownloadURL:  downloadURL,
		SHA256:       sha256,
	}
}

// NotAvailable builds a result for "no update this cycle".
func NotAvailable() UpdateCheckResult {
	return UpdateCheckResult{Outcome: OutcomeNotAvailable}
}

// CheckError builds a terminal error result with a host-presentable message.
func CheckError(message string) UpdateCheckResult {
	return UpdateCheckResult{Outcome: OutcomeError, Message: message}
}

// RolloutConfig is the staged-rollout policy attached to a release as a JSON
// asset. It is fetched per check; invalid or missing values degrade to the
// fail-open default of 100%.
type RolloutConfig struct {
	Version           string   `json:"version"`
	RolloutPercentage int      `json:"rollout_percentage"`
	MinVersion        string   `json:"min_version"`
	BlockVersions     []string `json:"block_versions"`
}

// UpdateStatus is a snapshot of a background check or download operation.
type UpdateStatus struct {
	Stage     string  `json:"stage"`
	Progress  float64 `json:"progress"`
	Message   string  `json:"message"`
	Error     string  `json:"error,omitempty"`
	Completed bool    `json:"completed"`
}
