package crew

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StageDef is one stage as declared in stages.yaml. Stages run in file
// order. DependsOn names earlier stages whose output seeds this stage's
// research; a missing dependency (the stage failed) only degrades the
// input, it never blocks execution. HardStop marks a stage whose failure
// aborts the rest of the pipeline; no shipped stage sets it.
type StageDef struct {
	Name           string   `yaml:"name"`
	Agent          string   `yaml:"agent"`
	Description    string   `yaml:"description"`
	ExpectedOutput string   `yaml:"expectedOutput"`
	DependsOn      []string `yaml:"dependsOn"`
	HardStop       bool     `yaml:"hardStop"`
	TimeoutMs      int      `yaml:"timeoutMs"`
}

// AgentDef is one agent as declared in agents.yaml. Tools names the
// research tools the agent may draw evidence from: "search", "github",
// "website".
type AgentDef struct {
	Role      string   `yaml:"role"`
	Goal      string   `yaml:"goal"`
	Backstory string   `yaml:"backstory"`
	Tools     []string `yaml:"tools"`
}

type stagesFile struct {
	Stages []StageDef `yaml:"stages"`
}

type agentsFile struct {
	Agents map[string]AgentDef `yaml:"agents"`
}

// Registry is the resolved, validated crew definition: a fixed ordered
// stage list plus the agents they reference. Resolved once at startup.
type Registry struct {
	Stages []StageDef
	Agents map[string]AgentDef
}

// Load reads and validates the stage and agent definition files.
func Load(stagesPath, agentsPath string) (*Registry, error) {
	var sf stagesFile
	if err := decodeFile(stagesPath, &sf); err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	var af agentsFile
	if err := decodeFile(agentsPath, &af); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	reg := &Registry{Stages: sf.Stages, Agents: af.Agents}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func decodeFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	return dec.Decode(out)
}

func (r *Registry) validate() error {
	if len(r.Stages) == 0 {
		return fmt.Errorf("no stages defined")
	}

	seen := make(map[string]int, len(r.Stages))
	for i, st := range r.Stages {
		if st.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("duplicate stage name %q", st.Name)
		}
		if st.Agent == "" {
			return fmt.Errorf("stage %q names no agent", st.Name)
		}
		if _, ok := r.Agents[st.Agent]; !ok {
			return fmt.Errorf("stage %q references unknown agent %q", st.Name, st.Agent)
		}
		// Dependencies must point at earlier stages; the pipeline never
		// looks forward.
		for _, dep := range st.DependsOn {
			pos, ok := seen[dep]
			if !ok || pos >= i {
				return fmt.Errorf("stage %q depends on %q which is not an earlier stage", st.Name, dep)
			}
		}
		seen[st.Name] = i
	}

	return nil
}
