package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"scout/internal/crew"
	"scout/internal/github"
	"scout/internal/llm"
	"scout/internal/metrics"
	"scout/internal/pipeline"
	"scout/internal/search"
	"scout/internal/webfetch"
)

// Tool names accepted in agents.yaml.
const (
	ToolSearch  = "search"
	ToolGitHub  = "github"
	ToolWebsite = "website"
)

const (
	maxSeedChars     = 300
	maxEvidenceChars = 4000
)

// Runtime holds the shared research tools and binds crew agents to
// pipeline executors. Any tool may be nil; an agent that names an
// unavailable tool simply gathers no evidence from it.
type Runtime struct {
	LLM        llm.Client
	Search     search.Provider
	GitHub     *github.Client
	Web        *webfetch.Fetcher
	MaxResults int
	Logger     *slog.Logger

	// Resolved for metrics labels.
	LLMProvider string
	LLMModel    string
}

// Executor returns the pipeline executor for one stage. The executor
// derives its research query from the stage's declared dependencies when
// their output is present and falls back to the raw goal when it is not,
// so a failed upstream stage degrades the input instead of blocking the
// stage.
func (rt *Runtime) Executor(def crew.AgentDef, stage crew.StageDef) pipeline.Executor {
	return func(ctx context.Context, goal string, pc pipeline.Context) (string, error) {
		if rt.LLM == nil {
			return "", errors.New("llm is not configured")
		}

		query := rt.seedQuery(goal, stage, pc)
		evidence := rt.gatherEvidence(ctx, def.Tools, query)

		prompt := rt.buildPrompt(goal, stage, pc, evidence)
		system := fmt.Sprintf("You are %s. %s\nYour goal: %s", def.Role, def.Backstory, def.Goal)

		out, err := rt.LLM.Complete(ctx, llm.CompleteRequest{
			System:      system,
			Prompt:      prompt,
			Temperature: 0.2,
		})
		metrics.RecordLLMCall(rt.LLMProvider, rt.LLMModel, err == nil)
		if err != nil {
			return "", fmt.Errorf("agent %s: %w", stage.Agent, err)
		}
		if strings.TrimSpace(out) == "" {
			return "", fmt.Errorf("agent %s produced no output", stage.Agent)
		}
		return out, nil
	}
}

// seedQuery prefers the freshest available dependency output to sharpen
// the search query; without one the goal itself is the query.
func (rt *Runtime) seedQuery(goal string, stage crew.StageDef, pc pipeline.Context) string {
	for i := len(stage.DependsOn) - 1; i >= 0; i-- {
		if out, ok := pc.Lookup(stage.DependsOn[i]); ok {
			seed := firstChars(out, maxSeedChars)
			if seed != "" {
				return goal + " " + seed
			}
		}
	}
	return goal
}

func (rt *Runtime) gatherEvidence(ctx context.Context, tools []string, query string) string {
	var b strings.Builder
	limit := rt.MaxResults
	if limit <= 0 {
		limit = 5
	}

	for _, tool := range tools {
		switch strings.ToLower(strings.TrimSpace(tool)) {
		case ToolSearch:
			rt.searchEvidence(ctx, &b, query, limit)
		case ToolGitHub:
			rt.githubEvidence(ctx, &b, query, limit)
		case ToolWebsite:
			rt.websiteEvidence(ctx, &b, query)
		}
	}

	return b.String()
}

func (rt *Runtime) searchEvidence(ctx context.Context, b *strings.Builder, query string, limit int) {
	if rt.Search == nil {
		return
	}
	results, err := rt.Search.Search(ctx, &search.Request{Query: query, Limit: limit})
	if err != nil {
		rt.logToolFailure(ToolSearch, err)
		return
	}
	if len(results) == 0 {
		return
	}

	b.WriteString("### Web search results\n")
	for _, r := range results {
		fmt.Fprintf(b, "- %s (%s): %s\n", r.Title, r.URL, r.Description)
	}
	b.WriteString("\n")
}

func (rt *Runtime) githubEvidence(ctx context.Context, b *strings.Builder, query string, limit int) {
	if rt.GitHub == nil {
		return
	}
	repos, err := rt.GitHub.SearchRepositories(ctx, query, limit)
	if err != nil {
		rt.logToolFailure(ToolGitHub, err)
	} else if len(repos) > 0 {
		b.WriteString("### GitHub repositories\n")
		for _, r := range repos {
			fmt.Fprintf(b, "- %s (%d stars, %s): %s\n", r.FullName, r.Stars, r.URL, r.Description)
		}
		b.WriteString("\n")
	}

	hits, err := rt.GitHub.SearchCode(ctx, query, limit)
	if err != nil {
		// Without a token code search is simply unavailable, not broken.
		if !errors.Is(err, github.ErrNoToken) {
			rt.logToolFailure(ToolGitHub, err)
		}
		return
	}
	if len(hits) == 0 {
		return
	}

	b.WriteString("### GitHub code hits\n")
	for _, h := range hits {
		fmt.Fprintf(b, "- %s: %s (%s)\n", h.Repo, h.Path, h.URL)
	}
	b.WriteString("\n")
}

// websiteEvidence fetches the top search hit and includes its markdown.
// It needs the search provider to pick a URL; without one it contributes
// nothing.
func (rt *Runtime) websiteEvidence(ctx context.Context, b *strings.Builder, query string) {
	if rt.Web == nil || rt.Search == nil {
		return
	}

	results, err := rt.Search.Search(ctx, &search.Request{Query: query, Limit: 1})
	if err != nil || len(results) == 0 {
		if err != nil {
			rt.logToolFailure(ToolWebsite, err)
		}
		return
	}

	page, err := rt.Web.Fetch(ctx, results[0].URL)
	if err != nil {
		rt.logToolFailure(ToolWebsite, err)
		return
	}

	fmt.Fprintf(b, "### Page: %s (%s)\n%s\n\n", page.Title, page.URL, firstChars(page.Markdown, maxEvidenceChars))
}

func (rt *Runtime) buildPrompt(goal string, stage crew.StageDef, pc pipeline.Context, evidence string) string {
	var b strings.Builder

	desc := strings.ReplaceAll(stage.Description, "{goal}", goal)
	fmt.Fprintf(&b, "Research goal: %s\n\nTask: %s\n", goal, desc)

	for _, dep := range stage.DependsOn {
		out, ok := pc.Lookup(dep)
		if !ok {
			// The dependency failed upstream. Say so explicitly so the
			// model works from the goal instead of inventing a citation.
			fmt.Fprintf(&b, "\n## Output of %s\n(not available; derive what you need from the research goal directly)\n", dep)
			continue
		}
		fmt.Fprintf(&b, "\n## Output of %s\n%s\n", dep, out)
	}

	if evidence != "" {
		fmt.Fprintf(&b, "\n## Gathered evidence\n%s", evidence)
	}

	if stage.ExpectedOutput != "" {
		expected := strings.ReplaceAll(stage.ExpectedOutput, "{goal}", goal)
		fmt.Fprintf(&b, "\nExpected output: %s\n", expected)
	}

	return b.String()
}

func (rt *Runtime) logToolFailure(tool string, err error) {
	if rt.Logger != nil {
		rt.Logger.Warn("tool call failed", "tool", tool, "error", err)
	}
}

// firstChars truncates to at most n bytes without splitting a rune.
func firstChars(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
