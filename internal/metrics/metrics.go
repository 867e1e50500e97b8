package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the research service.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	stageRunsTotal  = make(map[stageKey]int64)
	stageDurationMs = make(map[string]int64)

	jobsFinishedTotal = make(map[string]int64)

	llmCallsTotal = make(map[llmKey]int64)

	retentionJobsDeleted      int64
	retentionArtifactsDeleted int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type stageKey struct {
	Stage   string
	Success string
}

type llmKey struct {
	Provider string
	Model    string
	Success  string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordStage increments the per-stage execution counter and accumulates
// stage duration.
func RecordStage(stage string, success bool, durationMs int64) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	stageRunsTotal[stageKey{Stage: stage, Success: s}]++
	if durationMs > 0 {
		stageDurationMs[stage] += durationMs
	}
}

// RecordJobFinished increments the counter of jobs that reached the given
// terminal state.
func RecordJobFinished(state string) {
	mu.Lock()
	defer mu.Unlock()
	jobsFinishedTotal[state]++
}

// RecordLLMCall increments LLM completion counters.
func RecordLLMCall(provider, model string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	llmCallsTotal[llmKey{Provider: provider, Model: model, Success: s}]++
}

// RecordRetentionJobs increments the counter of jobs evicted by TTL.
func RecordRetentionJobs(deleted int) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionJobsDeleted += int64(deleted)
}

// RecordRetentionArtifacts increments the counter of artifact index rows
// deleted by TTL cleanup.
func RecordRetentionArtifacts(deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionArtifactsDeleted += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP scout_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE scout_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "scout_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP scout_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE scout_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP scout_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE scout_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "scout_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "scout_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	// Stage execution metrics
	b.WriteString("# HELP scout_stage_runs_total Total pipeline stage executions\n")
	b.WriteString("# TYPE scout_stage_runs_total counter\n")

	var stageKeys []stageKey
	for k := range stageRunsTotal {
		stageKeys = append(stageKeys, k)
	}
	sort.Slice(stageKeys, func(i, j int) bool {
		if stageKeys[i].Stage != stageKeys[j].Stage {
			return stageKeys[i].Stage < stageKeys[j].Stage
		}
		return stageKeys[i].Success < stageKeys[j].Success
	})

	for _, k := range stageKeys {
		fmt.Fprintf(&b, "scout_stage_runs_total{stage=\"%s\",success=\"%s\"} %d\n",
			k.Stage, k.Success, stageRunsTotal[k])
	}

	b.WriteString("# HELP scout_stage_duration_ms_sum Total stage duration in milliseconds\n")
	b.WriteString("# TYPE scout_stage_duration_ms_sum counter\n")

	var durKeys []string
	for k := range stageDurationMs {
		durKeys = append(durKeys, k)
	}
	sort.Strings(durKeys)
	for _, k := range durKeys {
		fmt.Fprintf(&b, "scout_stage_duration_ms_sum{stage=\"%s\"} %d\n", k, stageDurationMs[k])
	}

	// Job terminal-state metrics
	b.WriteString("# HELP scout_jobs_finished_total Jobs that reached a terminal state\n")
	b.WriteString("# TYPE scout_jobs_finished_total counter\n")

	var jobKeys []string
	for k := range jobsFinishedTotal {
		jobKeys = append(jobKeys, k)
	}
	sort.Strings(jobKeys)
	for _, k := range jobKeys {
		fmt.Fprintf(&b, "scout_jobs_finished_total{state=\"%s\"} %d\n", k, jobsFinishedTotal[k])
	}

	// LLM completion metrics
	b.WriteString("# HELP scout_llm_calls_total Total LLM completion calls\n")
	b.WriteString("# TYPE scout_llm_calls_total counter\n")

	var llmKeys []llmKey
	for k := range llmCallsTotal {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Provider != llmKeys[j].Provider {
			return llmKeys[i].Provider < llmKeys[j].Provider
		}
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})

	for _, k := range llmKeys {
		fmt.Fprintf(&b, "scout_llm_calls_total{provider=\"%s\",model=\"%s\",success=\"%s\"} %d\n",
			k.Provider, k.Model, k.Success, llmCallsTotal[k])
	}

	// Retention metrics
	b.WriteString("# HELP scout_retention_jobs_deleted_total Jobs evicted by retention sweeps\n")
	b.WriteString("# TYPE scout_retention_jobs_deleted_total counter\n")
	fmt.Fprintf(&b, "scout_retention_jobs_deleted_total %d\n", retentionJobsDeleted)

	b.WriteString("# HELP scout_retention_artifacts_deleted_total Artifact index rows deleted by retention sweeps\n")
	b.WriteString("# TYPE scout_retention_artifacts_deleted_total counter\n")
	fmt.Fprintf(&b, "scout_retention_artifacts_deleted_total %d\n", retentionArtifactsDeleted)

	return b.String()
}
