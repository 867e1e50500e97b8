package metrics

import (
	"strings"
	"testing"
)

func TestExportContainsRecordedMetrics(t *testing.T) {
	RecordRequest("POST", "/v1/research", 202, 12)
	RecordRequest("POST", "/v1/research", 202, 8)
	RecordStage("research_topic", true, 1500)
	RecordStage("search_github", false, 0)
	RecordJobFinished("completed")
	RecordLLMCall("openai", "gpt-4o-mini", true)
	RecordRetentionJobs(3)
	RecordRetentionArtifacts(2)

	out := Export()

	checks := []string{
		`scout_http_requests_total{method="POST",path="/v1/research",status="202"} 2`,
		`scout_http_request_duration_ms_sum{method="POST",path="/v1/research"} 20`,
		`scout_http_request_duration_ms_count{method="POST",path="/v1/research"} 2`,
		`scout_stage_runs_total{stage="research_topic",success="true"} 1`,
		`scout_stage_runs_total{stage="search_github",success="false"} 1`,
		`scout_stage_duration_ms_sum{stage="research_topic"} 1500`,
		`scout_jobs_finished_total{state="completed"} 1`,
		`scout_llm_calls_total{provider="openai",model="gpt-4o-mini",success="true"} 1`,
		"scout_retention_jobs_deleted_total 3",
		"scout_retention_artifacts_deleted_total 2",
		"# TYPE scout_http_requests_total counter",
	}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q\n%s", want, out)
		}
	}
}

func TestRecordRetentionIgnoresNonPositive(t *testing.T) {
	before := Export()
	RecordRetentionJobs(0)
	RecordRetentionJobs(-5)
	RecordRetentionArtifacts(0)
	if got := Export(); got != before {
		t.Errorf("non-positive deltas must not change counters")
	}
}
