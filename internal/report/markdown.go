package report

import (
	"fmt"
	"strings"

	"scout/internal/pipeline"
)

// Build assembles the final report from the order-preserved stage log:
// a title block followed by one section per attempted stage. Failed stages
// render a failure note so graceful degradation stays visible in the
// artifact, not just in the job record.
func Build(crewName, goal string, results []pipeline.StageResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Report: %s\n\n", goal)
	fmt.Fprintf(&b, "## Crew: %s\n\n", crewName)

	for _, r := range results {
		heading := r.Name
		if r.Agent != "" {
			heading = fmt.Sprintf("%s (Agent: %s)", r.Name, r.Agent)
		}
		fmt.Fprintf(&b, "## %s\n\n", heading)

		if r.Success {
			output := strings.TrimSpace(r.Output)
			if output == "" {
				output = "No output generated"
			}
			fmt.Fprintf(&b, "**Output:**\n\n%s\n\n", output)
		} else {
			fmt.Fprintf(&b, "**Stage failed:** %s\n\n", r.FailureReason)
		}
	}

	return b.String()
}

// Section is one second-level block of a parsed report.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Parsed is the JSON shape of a report, used when a client requests
// ?format=json instead of raw markdown.
type Parsed struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// ParseSections splits a markdown report into its title and second-level
// sections. It is intentionally forgiving: anything before the first "## "
// heading that is not the title is ignored.
func ParseSections(md string) Parsed {
	var out Parsed
	var current *Section

	for _, line := range strings.Split(md, "\n") {
		switch {
		case strings.HasPrefix(line, "# ") && out.Title == "":
			out.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
		case strings.HasPrefix(line, "## "):
			out.Sections = append(out.Sections, Section{
				Heading: strings.TrimSpace(strings.TrimPrefix(line, "## ")),
			})
			current = &out.Sections[len(out.Sections)-1]
		default:
			if current != nil {
				if current.Body == "" {
					if strings.TrimSpace(line) == "" {
						continue
					}
					current.Body = line
				} else {
					current.Body += "\n" + line
				}
			}
		}
	}

	for i := range out.Sections {
		out.Sections[i].Body = strings.TrimSpace(out.Sections[i].Body)
	}
	return out
}
