// Package plan mirrors the remote task's hierarchical execution plan.
//
// Plan messages are merged into the tree by step id: fields present in an
// incoming record overwrite the stored ones, sub-steps merge recursively, and
// unknown ids are appended. Steps are never removed. Both flat plans (a list of
// leaf steps) and nested plans (groups containing steps) are supported.
package plan

import (
	"strconv"
	"strings"
	"sync"

	"github.com/entrhq/mate/pkg/types"
)

// Plan is the client-side mirror of the remote plan. It is safe for concurrent
// readers; writes are expected from a single goroutine.
type Plan struct {
	mu    sync.RWMutex
	items []*Step
	index map[string]*Step
}

// New creates an empty plan.
func New() *Plan {
	return &Plan{index: make(map[string]*Step)}
}

// Apply merges a plan message into the tree and reports whether anything changed.
func (p *Plan) Apply(msg *types.Message) bool {
	if msg == nil {
		return false
	}
	items := coerceItems(msg.Payload())
	if len(items) == 0 {
		// Only a top-level data list; envelope fields such as id are not steps
		items, _ = msg.Field("data").([]any)
	}
	return p.ApplyItems(items)
}

// ApplyItems merges raw step records into the tree and reports whether anything changed.
// Records that are not objects or carry no id are ignored.
func (p *Plan) ApplyItems(items []any) bool {
	if len(items) == 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.merge(&p.items, items)
}

// coerceItems extracts step records from a bare list, a {data: [...]} wrapper,
// a {message: {data: [...]}} envelope, or a single update record.
func coerceItems(v any) []any {
	switch src := v.(type) {
	case []any:
		return src
	case map[string]any:
		if msg, ok := src["message"].(map[string]any); ok {
			if items, ok := msg["data"].([]any); ok {
				return items
			}
		}
		switch data := src["data"].(type) {
		case []any:
			return data
		case map[string]any:
			return coerceItems(data)
		}
		if _, ok := src["id"]; ok {
			return []any{src}
		}
	}
	return nil
}

// merge applies records to the sibling list, appending steps with unseen ids.
func (p *Plan) merge(siblings *[]*Step, records []any) bool {
	changed := false
	for _, r := range records {
		rec, ok := r.(map[string]any)
		if !ok {
			continue
		}
		id := text(rec["id"])
		if id == "" {
			continue
		}

		if existing, ok := p.index[id]; ok {
			if p.update(existing, rec) {
				changed = true
			}
			continue
		}

		step := &Step{ID: id, Status: StatusNotStarted}
		p.index[id] = step
		*siblings = append(*siblings, step)
		p.update(step, rec)
		changed = true
	}
	return changed
}

// update overwrites the fields present and non-empty in rec.
func (p *Plan) update(step *Step, rec map[string]any) bool {
	changed := false

	if v := text(rec["title"]); v != "" && v != step.Title {
		step.Title = v
		changed = true
	}
	if v := text(rec["description"]); v != "" && v != step.Description {
		step.Description = v
		changed = true
	}
	if v := Status(text(rec["status"])); v != "" && v != step.Status {
		step.Status = v
		changed = true
	}
	if agents := stringList(rec["agents"]); len(agents) > 0 && !equalStrings(agents, step.Agents) {
		step.Agents = agents
		changed = true
	}

	for _, key := range []string{"steps", "children"} {
		if children, ok := rec[key].([]any); ok && p.merge(&step.Steps, children) {
			changed = true
		}
	}
	return changed
}

// Find returns the step with the given id, or nil.
func (p *Plan) Find(id string) *Step {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.index[id]; ok {
		return s.clone()
	}
	return nil
}

// Len returns the number of steps in the tree, groups included.
func (p *Plan) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.index)
}

// IsNested reports whether any root step contains sub-steps.
func (p *Plan) IsNested() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.items {
		if !s.IsLeaf() {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the root steps.
func (p *Plan) Snapshot() []*Step {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Step, 0, len(p.items))
	for _, s := range p.items {
		out = append(out, s.clone())
	}
	return out
}

// MessageData returns the tree as plan records, the same shape Apply accepts
// in a message's data list.
func (p *Plan) MessageData() []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return recordsOf(p.items)
}

func recordsOf(steps []*Step) []any {
	out := make([]any, 0, len(steps))
	for _, s := range steps {
		rec := map[string]any{"id": s.ID, "status": string(s.Status)}
		if s.Title != "" {
			rec["title"] = s.Title
		}
		if s.Description != "" {
			rec["description"] = s.Description
		}
		if len(s.Agents) > 0 {
			agents := make([]any, 0, len(s.Agents))
			for _, a := range s.Agents {
				agents = append(agents, a)
			}
			rec["agents"] = agents
		}
		if len(s.Steps) > 0 {
			rec["steps"] = recordsOf(s.Steps)
		}
		out = append(out, rec)
	}
	return out
}

// Flatten returns copies of all steps in depth-first order, groups included.
func (p *Plan) Flatten() []*Step {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Step
	walk(p.items, func(s *Step) {
		out = append(out, s.clone())
	})
	return out
}

// Leaves returns copies of the steps without sub-steps, in depth-first order.
func (p *Plan) Leaves() []*Step {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Step
	walk(p.items, func(s *Step) {
		if s.IsLeaf() {
			out = append(out, s.clone())
		}
	})
	return out
}

// OverallStatus aggregates leaf statuses with precedence
// error > in_progress > not_started > done/skipped. An empty plan is not started.
func (p *Plan) OverallStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	leaves, anyError, anyInProgress, allFinished := 0, false, false, true
	walk(p.items, func(s *Step) {
		if !s.IsLeaf() {
			return
		}
		leaves++
		switch {
		case s.Status == StatusError:
			anyError = true
		case s.Status == StatusInProgress:
			anyInProgress = true
		case !s.Status.IsFinished():
			allFinished = false
		}
	})

	switch {
	case leaves == 0:
		return StatusNotStarted
	case anyError:
		return StatusError
	case anyInProgress:
		return StatusInProgress
	case allFinished:
		return StatusDone
	default:
		return StatusNotStarted
	}
}

// Lines renders the plan as outline lines.
func (p *Plan) Lines() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var lines []string
	for _, s := range p.items {
		lines = s.appendLines(lines, 0)
	}
	return lines
}

// Render renders the plan as a multi-line outline.
func (p *Plan) Render() string {
	return strings.Join(p.Lines(), "\n")
}

func walk(steps []*Step, fn func(*Step)) {
	for _, s := range steps {
		fn(s)
		walk(s.Steps, fn)
	}
}

// text renders scalar JSON values as a string. Ids arrive as strings or numbers.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return append([]string(nil), ss...)
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := text(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
