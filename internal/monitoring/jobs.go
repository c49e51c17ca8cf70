package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/charlesng35/trackgate/pkg/metrics"
)

// Job results recorded by RecordJobRun.
const (
	JobSuccess = "success"
	JobFailure = "failure"
)

// JobSummary describes the recent history of a background job.
type JobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

var jobs = struct {
	sync.RWMutex
	byName map[string]*JobSummary
}{byName: make(map[string]*JobSummary)}

// RecordJobRun stores the outcome of a background job run and exports it as metrics.
func RecordJobRun(job, result, message string, duration time.Duration) {
	if job == "" {
		job = "unknown"
	}
	if duration < 0 {
		duration = 0
	}
	now := time.Now()

	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
	metrics.MaintenanceDuration.WithLabelValues(job).Observe(duration.Seconds())

	jobs.Lock()
	defer jobs.Unlock()

	entry, ok := jobs.byName[job]
	if !ok {
		entry = &JobSummary{Job: job}
		jobs.byName[job] = entry
	}
	entry.LastStatus = result
	entry.LastRunAt = now
	entry.LastDuration = duration
	entry.LastError = message
	entry.TotalRuns++
	if result == JobSuccess {
		entry.ConsecutiveFailures = 0
		entry.LastSuccessAt = now
	} else {
		entry.ConsecutiveFailures++
	}
}

// Jobs returns a snapshot of every recorded job ordered by name.
func Jobs() []JobSummary {
	jobs.RLock()
	defer jobs.RUnlock()

	out := make([]JobSummary, 0, len(jobs.byName))
	for _, entry := range jobs.byName {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// ResetJobs clears recorded job history.
func ResetJobs() {
	jobs.Lock()
	defer jobs.Unlock()
	jobs.byName = make(map[string]*JobSummary)
}
