package plan

import (
	"fmt"
	"strings"
)

// Status is the execution status of a plan step.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusSkipped    Status = "skipped"
	StatusError      Status = "error"
)

var statusGlyphs = map[Status]string{
	StatusNotStarted: "[ ]",
	StatusInProgress: "[~]",
	StatusDone:       "[√]",
	StatusSkipped:    "[-]",
	StatusError:      "[!]",
}

// Glyph returns the outline marker for the status. Unknown statuses render as not started.
func (s Status) Glyph() string {
	if g, ok := statusGlyphs[s]; ok {
		return g
	}
	return statusGlyphs[StatusNotStarted]
}

// IsFinished reports whether the status counts as complete for aggregation.
func (s Status) IsFinished() bool {
	return s == StatusDone || s == StatusSkipped
}

// Step is a single plan step. A step without sub-steps is a leaf; a step with
// sub-steps is a group.
type Step struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Agents      []string `json:"agents,omitempty"`
	Steps       []*Step  `json:"steps,omitempty"`
}

// IsLeaf returns true if the step has no sub-steps.
func (s *Step) IsLeaf() bool {
	return len(s.Steps) == 0
}

// Label returns the title, falling back to the description and then the id.
func (s *Step) Label() string {
	switch {
	case s.Title != "":
		return s.Title
	case s.Description != "":
		return s.Description
	default:
		return s.ID
	}
}

// appendLines renders the step and its sub-steps as outline lines.
func (s *Step) appendLines(lines []string, level int) []string {
	indent := strings.Repeat("  ", level)
	lines = append(lines, fmt.Sprintf("%s%s %s", indent, s.Status.Glyph(), s.Label()))

	if s.Title != "" && s.Description != "" && s.Description != s.Title {
		lines = append(lines, fmt.Sprintf("%s  - %s", indent, s.Description))
	}
	if len(s.Agents) > 0 {
		lines = append(lines, fmt.Sprintf("%s  agents: %s", indent, strings.Join(s.Agents, ", ")))
	}

	for _, child := range s.Steps {
		lines = child.appendLines(lines, level+1)
	}
	return lines
}

func (s *Step) clone() *Step {
	c := &Step{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Status:      s.Status,
	}
	if len(s.Agents) > 0 {
		c.Agents = append([]string(nil), s.Agents...)
	}
	for _, child := range s.Steps {
		c.Steps = append(c.Steps, child.clone())
	}
	return c
}

// Acceptance is the response body of a plan confirmation.
type Acceptance struct {
	Accepted bool    `json:"accepted"`
	Plan     []*Step `json:"plan"`
	Content  string  `json:"content"`
}

// NewAcceptance accepts the plan as proposed, optionally with amended steps.
func NewAcceptance(steps ...*Step) *Acceptance {
	if steps == nil {
		steps = []*Step{}
	}
	return &Acceptance{Accepted: true, Plan: steps}
}
