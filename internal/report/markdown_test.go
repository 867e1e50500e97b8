package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/pipeline"
)

func TestBuildRendersStagesInOrder(t *testing.T) {
	results := []pipeline.StageResult{
		{Name: "research_topic", Agent: "research_specialist", Success: true, Output: "findings here", Duration: time.Second},
		{Name: "search_github", Agent: "github_explorer", Success: false, FailureReason: "rate limited"},
		{Name: "design_flow", Agent: "flow_designer", Success: true, Output: ""},
	}

	md := Build("demo-crew", "learn channels", results)

	assert.Contains(t, md, "# Research Report: learn channels")
	assert.Contains(t, md, "## Crew: demo-crew")
	assert.Contains(t, md, "## research_topic (Agent: research_specialist)")
	assert.Contains(t, md, "findings here")
	assert.Contains(t, md, "**Stage failed:** rate limited")
	assert.Contains(t, md, "No output generated")

	// Sections appear in pipeline order.
	assert.Less(t, strings.Index(md, "research_topic"), strings.Index(md, "search_github"))
	assert.Less(t, strings.Index(md, "search_github"), strings.Index(md, "design_flow"))
}

func TestParseSectionsRoundTrip(t *testing.T) {
	results := []pipeline.StageResult{
		{Name: "one", Agent: "a", Success: true, Output: "line one\nline two"},
		{Name: "two", Agent: "b", Success: false, FailureReason: "boom"},
	}
	md := Build("crew", "goal", results)

	parsed := ParseSections(md)
	assert.Equal(t, "Research Report: goal", parsed.Title)
	require.Len(t, parsed.Sections, 3)

	assert.Equal(t, "Crew: crew", parsed.Sections[0].Heading)
	assert.Equal(t, "one (Agent: a)", parsed.Sections[1].Heading)
	assert.Contains(t, parsed.Sections[1].Body, "line one\nline two")
	assert.Equal(t, "two (Agent: b)", parsed.Sections[2].Heading)
	assert.Contains(t, parsed.Sections[2].Body, "boom")
}

func TestParseSectionsTolerantOfLooseMarkdown(t *testing.T) {
	parsed := ParseSections("stray preamble\n# Title\nmore noise\n## A\n\nbody\n")
	assert.Equal(t, "Title", parsed.Title)
	require.Len(t, parsed.Sections, 1)
	assert.Equal(t, "A", parsed.Sections[0].Heading)
	assert.Equal(t, "body", parsed.Sections[0].Body)
}
