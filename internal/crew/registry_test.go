package crew

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDefs(t *testing.T, stages, agents string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	sp := filepath.Join(dir, "stages.yaml")
	ap := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(sp, []byte(stages), 0o644))
	require.NoError(t, os.WriteFile(ap, []byte(agents), 0o644))
	return sp, ap
}

const validAgents = `
agents:
  researcher:
    role: Researcher
    goal: find things
    backstory: curious
    tools: [search]
  planner:
    role: Planner
    goal: plan things
    backstory: organized
    tools: []
`

func TestLoadValidDefinition(t *testing.T) {
	sp, ap := writeDefs(t, `
stages:
  - name: research
    agent: researcher
    description: Research "{goal}".
    expectedOutput: findings
  - name: plan
    agent: planner
    description: Plan for "{goal}".
    expectedOutput: a plan
    dependsOn: [research]
    timeoutMs: 30000
`, validAgents)

	reg, err := Load(sp, ap)
	require.NoError(t, err)

	require.Len(t, reg.Stages, 2)
	assert.Equal(t, "research", reg.Stages[0].Name)
	assert.Equal(t, []string{"research"}, reg.Stages[1].DependsOn)
	assert.Equal(t, 30000, reg.Stages[1].TimeoutMs)
	assert.Equal(t, "Researcher", reg.Agents["researcher"].Role)
	assert.Equal(t, []string{"search"}, reg.Agents["researcher"].Tools)
}

func TestLoadRejectsEmptyStages(t *testing.T) {
	sp, ap := writeDefs(t, "stages: []\n", validAgents)
	_, err := Load(sp, ap)
	assert.ErrorContains(t, err, "no stages defined")
}

func TestLoadRejectsDuplicateStageName(t *testing.T) {
	sp, ap := writeDefs(t, `
stages:
  - name: research
    agent: researcher
  - name: research
    agent: planner
`, validAgents)
	_, err := Load(sp, ap)
	assert.ErrorContains(t, err, "duplicate stage name")
}

func TestLoadRejectsUnknownAgent(t *testing.T) {
	sp, ap := writeDefs(t, `
stages:
  - name: research
    agent: ghost
`, validAgents)
	_, err := Load(sp, ap)
	assert.ErrorContains(t, err, `unknown agent "ghost"`)
}

func TestLoadRejectsForwardDependency(t *testing.T) {
	sp, ap := writeDefs(t, `
stages:
  - name: research
    agent: researcher
    dependsOn: [plan]
  - name: plan
    agent: planner
`, validAgents)
	_, err := Load(sp, ap)
	assert.ErrorContains(t, err, "not an earlier stage")
}

func TestLoadRejectsSelfDependency(t *testing.T) {
	sp, ap := writeDefs(t, `
stages:
  - name: research
    agent: researcher
    dependsOn: [research]
`, validAgents)
	_, err := Load(sp, ap)
	assert.ErrorContains(t, err, "not an earlier stage")
}

func TestLoadRejectsUnknownField(t *testing.T) {
	sp, ap := writeDefs(t, `
stages:
  - name: research
    agent: researcher
    retries: 3
`, validAgents)
	_, err := Load(sp, ap)
	assert.Error(t, err)
}

func TestLoadShippedDefinition(t *testing.T) {
	reg, err := Load(
		filepath.Join("..", "..", "crew", "stages.yaml"),
		filepath.Join("..", "..", "crew", "agents.yaml"),
	)
	require.NoError(t, err)
	require.Len(t, reg.Stages, 5)
	assert.Equal(t, "generate_prompt", reg.Stages[4].Name)
	for _, st := range reg.Stages {
		assert.False(t, st.HardStop)
	}
}
