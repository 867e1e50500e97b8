package agents

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/config"
	"scout/internal/crew"
	"scout/internal/github"
	"scout/internal/llm"
	"scout/internal/pipeline"
	"scout/internal/search"
)

type fakeLLM struct {
	lastSystem string
	lastPrompt string
	reply      string
	err        error
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompleteRequest) (string, error) {
	f.lastSystem = req.System
	f.lastPrompt = req.Prompt
	return f.reply, f.err
}

type fakeSearch struct {
	lastQuery string
	results   []search.Result
	err       error
}

func (f *fakeSearch) Search(ctx context.Context, req *search.Request) ([]search.Result, error) {
	f.lastQuery = req.Query
	return f.results, f.err
}

func planStage() crew.StageDef {
	return crew.StageDef{
		Name:           "plan",
		Agent:          "planner",
		Description:    `Plan the work for "{goal}".`,
		ExpectedOutput: "A plan for {goal}",
		DependsOn:      []string{"research"},
	}
}

func plannerDef(tools ...string) crew.AgentDef {
	return crew.AgentDef{
		Role:      "Planner",
		Goal:      "plan things",
		Backstory: "You plan carefully.",
		Tools:     tools,
	}
}

func TestExecutorBuildsPromptFromDependencies(t *testing.T) {
	model := &fakeLLM{reply: "the plan"}
	rt := &Runtime{LLM: model}

	run := rt.Executor(plannerDef(), planStage())
	out, err := run(context.Background(), "build a cache", pipeline.Context{
		"research": "research findings",
	})
	require.NoError(t, err)
	assert.Equal(t, "the plan", out)

	assert.Contains(t, model.lastSystem, "You are Planner")
	assert.Contains(t, model.lastSystem, "You plan carefully.")
	assert.Contains(t, model.lastPrompt, "Research goal: build a cache")
	assert.Contains(t, model.lastPrompt, `Plan the work for "build a cache".`)
	assert.Contains(t, model.lastPrompt, "## Output of research\nresearch findings")
	assert.Contains(t, model.lastPrompt, "Expected output: A plan for build a cache")
}

func TestExecutorDegradesWhenDependencyMissing(t *testing.T) {
	model := &fakeLLM{reply: "degraded plan"}
	rt := &Runtime{LLM: model}

	run := rt.Executor(plannerDef(), planStage())
	_, err := run(context.Background(), "build a cache", pipeline.Context{})
	require.NoError(t, err)

	assert.Contains(t, model.lastPrompt, "## Output of research\n(not available")
}

func TestExecutorSeedsQueryFromFreshestDependency(t *testing.T) {
	model := &fakeLLM{reply: "ok"}
	srch := &fakeSearch{}
	rt := &Runtime{LLM: model, Search: srch}

	stage := planStage()
	stage.DependsOn = []string{"research", "design"}

	run := rt.Executor(plannerDef(ToolSearch), stage)
	_, err := run(context.Background(), "goal", pipeline.Context{
		"research": "older output",
		"design":   "fresher output",
	})
	require.NoError(t, err)
	assert.Equal(t, "goal fresher output", srch.lastQuery)
}

func TestExecutorFallsBackToGoalQuery(t *testing.T) {
	model := &fakeLLM{reply: "ok"}
	srch := &fakeSearch{}
	rt := &Runtime{LLM: model, Search: srch}

	run := rt.Executor(plannerDef(ToolSearch), planStage())
	_, err := run(context.Background(), "bare goal", pipeline.Context{})
	require.NoError(t, err)
	assert.Equal(t, "bare goal", srch.lastQuery)
}

func TestExecutorIncludesSearchEvidence(t *testing.T) {
	model := &fakeLLM{reply: "ok"}
	srch := &fakeSearch{results: []search.Result{
		{Title: "Doc", URL: "https://doc.example", Description: "the docs"},
	}}
	rt := &Runtime{LLM: model, Search: srch}

	run := rt.Executor(plannerDef(ToolSearch), planStage())
	_, err := run(context.Background(), "goal", pipeline.Context{})
	require.NoError(t, err)

	assert.Contains(t, model.lastPrompt, "## Gathered evidence")
	assert.Contains(t, model.lastPrompt, "- Doc (https://doc.example): the docs")
}

func githubRuntime(t *testing.T, token string) (*Runtime, *fakeLLM) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/repositories":
			io.WriteString(w, `{"items": [
				{"full_name": "gofiber/fiber", "description": "web framework", "stargazers_count": 35000, "html_url": "https://github.com/gofiber/fiber"}
			]}`)
		case "/search/code":
			io.WriteString(w, `{"items": [
				{"path": "middleware/cache.go", "html_url": "https://github.com/x/y/blob/main/middleware/cache.go", "repository": {"full_name": "x/y"}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.GitHub.BaseURL = srv.URL
	cfg.GitHub.Token = token

	model := &fakeLLM{reply: "ok"}
	return &Runtime{LLM: model, GitHub: github.NewClientFromConfig(cfg)}, model
}

func TestExecutorIncludesGitHubEvidence(t *testing.T) {
	rt, model := githubRuntime(t, "tok")

	run := rt.Executor(plannerDef(ToolGitHub), planStage())
	_, err := run(context.Background(), "goal", pipeline.Context{})
	require.NoError(t, err)

	assert.Contains(t, model.lastPrompt, "### GitHub repositories")
	assert.Contains(t, model.lastPrompt, "- gofiber/fiber (35000 stars")
	assert.Contains(t, model.lastPrompt, "### GitHub code hits")
	assert.Contains(t, model.lastPrompt, "- x/y: middleware/cache.go")
}

func TestExecutorGitHubWithoutTokenSkipsCodeSearch(t *testing.T) {
	rt, model := githubRuntime(t, "")

	run := rt.Executor(plannerDef(ToolGitHub), planStage())
	_, err := run(context.Background(), "goal", pipeline.Context{})
	require.NoError(t, err)

	assert.Contains(t, model.lastPrompt, "### GitHub repositories")
	assert.NotContains(t, model.lastPrompt, "### GitHub code hits")
}

func TestExecutorToolFailureIsNotFatal(t *testing.T) {
	model := &fakeLLM{reply: "still fine"}
	srch := &fakeSearch{err: errors.New("provider down")}
	rt := &Runtime{LLM: model, Search: srch}

	run := rt.Executor(plannerDef(ToolSearch), planStage())
	out, err := run(context.Background(), "goal", pipeline.Context{})
	require.NoError(t, err)
	assert.Equal(t, "still fine", out)
	assert.NotContains(t, model.lastPrompt, "## Gathered evidence")
}

func TestExecutorMissingToolsGatherNothing(t *testing.T) {
	model := &fakeLLM{reply: "ok"}
	rt := &Runtime{LLM: model}

	run := rt.Executor(plannerDef(ToolSearch, ToolGitHub, ToolWebsite), planStage())
	_, err := run(context.Background(), "goal", pipeline.Context{})
	require.NoError(t, err)
	assert.NotContains(t, model.lastPrompt, "## Gathered evidence")
}

func TestExecutorRequiresLLM(t *testing.T) {
	rt := &Runtime{}
	run := rt.Executor(plannerDef(), planStage())

	_, err := run(context.Background(), "goal", pipeline.Context{})
	assert.ErrorContains(t, err, "llm is not configured")
}

func TestExecutorPropagatesLLMFailure(t *testing.T) {
	rt := &Runtime{LLM: &fakeLLM{err: errors.New("quota exceeded")}}
	run := rt.Executor(plannerDef(), planStage())

	_, err := run(context.Background(), "goal", pipeline.Context{})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestExecutorRejectsEmptyCompletion(t *testing.T) {
	rt := &Runtime{LLM: &fakeLLM{reply: "   \n"}}
	run := rt.Executor(plannerDef(), planStage())

	_, err := run(context.Background(), "goal", pipeline.Context{})
	assert.ErrorContains(t, err, "produced no output")
}

func TestFirstChars(t *testing.T) {
	assert.Equal(t, "abc", firstChars("  abc  ", 10))
	assert.Equal(t, "abc", firstChars("abcdef", 3))
	assert.Equal(t, strings.Repeat("x", maxSeedChars), firstChars(strings.Repeat("x", maxSeedChars*2), maxSeedChars))
}

func TestFirstCharsKeepsRunesIntact(t *testing.T) {
	// The cut lands mid-rune; the whole rune is dropped.
	assert.Equal(t, "a", firstChars("aé", 2))
	assert.Equal(t, "aé", firstChars("aéz", 3))

	s := strings.Repeat("héllo wörld ", 40)
	for n := 0; n <= len(s); n++ {
		out := firstChars(s, n)
		assert.True(t, utf8.ValidString(out), "truncation at %d produced invalid UTF-8", n)
		assert.LessOrEqual(t, len(out), n)
	}
}
