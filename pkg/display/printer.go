package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/entrhq/mate/pkg/plan"
	"github.com/entrhq/mate/pkg/types"
)

// Level represents the console verbosity level
type Level int

const (
	// LevelQuiet shows only errors, warnings and the final summary
	LevelQuiet Level = iota
	// LevelNormal shows session progress (default)
	LevelNormal
	// LevelVerbose adds message details
	LevelVerbose
	// LevelDebug adds every raw message
	LevelDebug
)

// ParseLevel converts a verbosity name to a Level. Unknown names map to LevelNormal.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "quiet":
		return LevelQuiet
	case "verbose":
		return LevelVerbose
	case "debug":
		return LevelDebug
	default:
		return LevelNormal
	}
}

// PlanView is the read side of a session's mirrored plan.
type PlanView interface {
	PlanLines() []string
	PlanStatus() plan.Status
}

// Summary is what a finished run reports.
type Summary struct {
	SessionID   string
	Reason      string
	FinalAnswer string
	Screenshots int
	Err         error
	Duration    time.Duration
}

// Printer writes session progress to the console.
type Printer struct {
	level  Level
	writer io.Writer
	style  styles
	color  bool

	mu       sync.Mutex
	received int
}

// NewPrinter creates a printer writing to stdout.
func NewPrinter(level Level) *Printer {
	return NewWriterPrinter(level, os.Stdout)
}

// NewWriterPrinter creates a printer writing to w.
func NewWriterPrinter(level Level, w io.Writer) *Printer {
	return &Printer{
		level:  level,
		writer: w,
		style:  newStyles(w),
		color:  IsTerminal(w),
	}
}

// Level returns the printer's verbosity.
func (p *Printer) Level() Level {
	return p.level
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.writer, s)
}

// Header prints a prominent header line
func (p *Printer) Header(message string) {
	if p.level >= LevelNormal {
		rule := strings.Repeat("=", 70)
		p.println("\n" + p.style.header.Render(rule) + "\n" + p.style.header.Render("  "+message) + "\n" + p.style.header.Render(rule))
	}
}

// Section prints a section divider
func (p *Printer) Section(title string) {
	if p.level >= LevelNormal {
		p.println("\n" + p.style.section.Render("▶ "+title) + "\n" + p.style.muted.Render(strings.Repeat("─", 50)))
	}
}

// Successf prints a success message with checkmark
func (p *Printer) Successf(format string, args ...interface{}) {
	if p.level >= LevelNormal {
		p.println(p.style.success.Render("  ✓ " + fmt.Sprintf(format, args...)))
	}
}

// Infof prints an informational message
func (p *Printer) Infof(format string, args ...interface{}) {
	if p.level >= LevelNormal {
		p.println(p.style.info.Render("  " + fmt.Sprintf(format, args...)))
	}
}

// Sentf reports something the user sent
func (p *Printer) Sentf(format string, args ...interface{}) {
	if p.level >= LevelNormal {
		p.println(p.style.user.Render("  → " + fmt.Sprintf(format, args...)))
	}
}

// Warningf prints a warning message
func (p *Printer) Warningf(format string, args ...interface{}) {
	p.println(p.style.warning.Render("  ⚠ " + fmt.Sprintf(format, args...)))
}

// Errorf prints an error message
func (p *Printer) Errorf(format string, args ...interface{}) {
	p.println(p.style.err.Render("  ✗ " + fmt.Sprintf(format, args...)))
}

// Verbosef prints detailed information (only in verbose mode)
func (p *Printer) Verbosef(format string, args ...interface{}) {
	if p.level >= LevelVerbose {
		p.println(p.style.muted.Render("    " + fmt.Sprintf(format, args...)))
	}
}

// Debugf prints debug information (only in debug mode)
func (p *Printer) Debugf(format string, args ...interface{}) {
	if p.level >= LevelDebug {
		p.println(p.style.muted.Render("[DEBUG] " + fmt.Sprintf(format, args...)))
	}
}

// Prompt prints the input prompt for the given round without a newline.
func (p *Printer) Prompt(round int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.writer, p.style.user.Render(fmt.Sprintf("[%d] >", round))+" ")
}

// Newline adds a blank line
func (p *Printer) Newline() {
	p.println("")
}

// Raw prints s as is at every level.
func (p *Printer) Raw(s string) {
	p.println(s)
}

// Color reports whether output goes to a terminal.
func (p *Printer) Color() bool {
	return p.color
}

// Event prints one session event. view supplies the plan for plan messages.
func (p *Printer) Event(ev *types.SessionEvent, view PlanView, sessionID string) {
	switch ev.Type {
	case types.EventTypeConnected:
		p.Successf("Connected to session %s", sessionID)
		return
	case types.EventTypeDisconnected:
		p.Verbosef("Connection closed")
		return
	case types.EventTypeError:
		p.Errorf("Session error: %v", ev.Error)
		return
	}

	if ev.Kind.IsHeartbeat() {
		p.Debugf("%s", ev.Kind)
		return
	}

	p.mu.Lock()
	p.received++
	count := p.received
	p.mu.Unlock()

	msg := ev.Message
	if p.level >= LevelDebug {
		if raw, err := HighlightJSON(msg, p.color); err == nil {
			p.Debugf("%s\n%s", FormatHeader(count, ev.Kind, sessionID), raw)
		}
	}

	switch ev.Kind {
	case types.KindText:
		p.text(msg)
	case types.KindPlan:
		p.plan(ev, view)
	case types.KindInput:
		p.input(ev)
	case types.KindRich:
		p.rich(msg)
	case types.KindTaskResult:
		p.Successf("Task result: %s", msg.Content())
	default:
		p.Warningf("Unhandled message type: %s", msg.Type())
	}

	if p.level >= LevelVerbose {
		p.Verbosef("%s", FormatDetails(msg))
	}
}

func (p *Printer) text(msg *types.Message) {
	if p.level < LevelNormal {
		return
	}
	source := msg.Source()
	if source == "" {
		source = "unknown"
	}
	p.println("  " + p.style.source.Render(source) + " - " + p.style.text.Render(msg.Content()))
}

func (p *Printer) plan(ev *types.SessionEvent, view PlanView) {
	if p.level < LevelNormal || view == nil {
		return
	}
	if !ev.PlanChanged {
		p.Infof("Plan message received but no changes applied")
		p.Infof("Plan status: %s", view.PlanStatus())
		return
	}

	var b strings.Builder
	b.WriteString(p.style.header.Render("Received Plan:"))
	for _, line := range view.PlanLines() {
		b.WriteString("\n")
		b.WriteString(p.style.plan.Render(line))
	}
	p.println(b.String())
	p.Infof("Plan status: %s", view.PlanStatus())
}

func (p *Printer) input(ev *types.SessionEvent) {
	switch {
	case ev.AcceptedRequestID != "":
		p.Successf("Auto-accepted plan request %s", ev.AcceptedRequestID)
	case ev.Error != nil:
		p.Errorf("Failed to accept plan: %v", ev.Error)
		p.Warningf("Awaiting your input. Type 'exit' to leave the session.")
	default:
		p.Warningf("Awaiting your input. Type 'exit' to leave the session.")
	}
}

func (p *Printer) rich(msg *types.Message) {
	if action, ok := types.BrowserActionOf(msg); ok {
		p.Infof("Browser: %s", action.Summary())
		return
	}
	p.Verbosef("Rich content: %s", types.InnerType(msg))
}

// Summary prints the final report of a run.
func (p *Printer) Summary(s Summary) {
	if s.FinalAnswer != "" {
		p.println(p.style.header.Render("  📝 Final Answer") + "\n" + p.style.answer.Render(s.FinalAnswer))
	}
	if s.Screenshots > 0 {
		p.Infof("📸 Captured %d screenshots", s.Screenshots)
	}
	if s.Err != nil {
		p.Errorf("Task execution failed: %v", s.Err)
	}
	if p.level >= LevelVerbose && s.Duration > 0 {
		p.Verbosef("Duration: %s", s.Duration.Round(time.Second))
	}
	p.Infof("Session completed (%s).", s.Reason)
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
