package update

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

// Stages reported by the Runner while an operation is in flight.
const (
	StageIdle        = "idle"
	StageChecking    = "checking"
	StageDownloading = "downloading"
	StageCompleted   = "completed"
	StageFailed      = "failed"
)

// Runner executes checks and downloads off the caller's goroutine and
// delivers results through callbacks, which is how the host UI consumes the
// subsystem. Callbacks run on the background goroutine; hopping back to a UI
// thread is the host's job. An in-flight download is never forcibly aborted:
// partial-download resume makes an abandoned transfer cheap to pick up later.
type Runner struct {
	orchestrator *Orchestrator

	mu     sync.RWMutex
	status models.UpdateStatus
}

// NewRunner wraps an orchestrator for background execution.
func NewRunner(o *Orchestrator) *Runner {
	return &Runner{
		orchestrator: o,
		status:       models.UpdateStatus{Stage: StageIdle, Completed: true},
	}
}

// Status returns a snapshot of the most recent operation.
func (r *Runner) Status() models.UpdateStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) setStatus(stage string, progress float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = models.UpdateStatus{Stage: stage, Progress: progress, Message: message}
}

func (r *Runner) finish(stage, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Stage = stage
	r.status.Error = errMsg
	r.status.Completed = true
}

// CheckInBackground runs one update check on its own goroutine and hands the
// tagged result to onResult. With ifDue set, a check that is not yet due
// resolves immediately to NotAvailable without touching the network.
func (r *Runner) CheckInBackground(ifDue bool, onResult func(models.UpdateCheckResult)) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("update check panicked: %v", rec)
				r.finish(StageFailed, fmt.Sprintf("internal error: %v", rec))
				if onResult != nil {
					onResult(models.CheckError("internal update check failure"))
				}
			}
		}()

		if ifDue && !r.orchestrator.ShouldCheckNow() {
			log.Debug("update check not due yet")
			r.finish(StageIdle, "")
			if onResult != nil {
				onResult(models.NotAvailable())
			}
			return
		}

		r.setStatus(StageChecking, 0, "checking for updates")
		result := r.orchestrator.CheckForUpdates()
		if result.Outcome == models.OutcomeError {
			r.finish(StageFailed, result.Message)
		} else {
			r.finish(StageCompleted, "")
		}
		if onResult != nil {
			onResult(result)
		}
	}()
}

// StageInBackground downloads and verifies the installer for an Available
// result on its own goroutine, reporting progress through the runner status
// and the final path (or error) through onDone.
func (r *Runner) StageInBackground(result models.UpdateCheckResult, onDone func(path string, err error)) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("installer staging panicked: %v", rec)
				r.finish(StageFailed, fmt.Sprintf("internal error: %v", rec))
				if onDone != nil {
					onDone("", fmt.Errorf("internal installer staging failure"))
				}
			}
		}()

		r.setStatus(StageDownloading, 0, fmt.Sprintf("downloading version %s", result.Version))
		progress := func(downloaded, total int64) {
			pct := float64(downloaded) / float64(total) * 100
			r.setStatus(StageDownloading, pct, fmt.Sprintf("downloading: %.1f MB / %.1f MB",
				float64(downloaded)/1024/1024, float64(total)/1024/1024))
		}

		path, err := r.orchestrator.StageInstaller(result, progress)
		if err != nil {
			r.finish(StageFailed, err.Error())
		} else {
			r.finish(StageCompleted, "")
		}
		if onDone != nil {
			onDone(path, err)
		}
	}()
}
