package evaluate

import (
	"fmt"
	"strings"
)

// State is a monitoring state. The values match the Sensu check exit codes.
type State int

const (
	OK State = iota
	Warn
	Crit
	Unknown
)

func (s State) String() string {
	switch s {
	case OK:
		return "OK"
	case Warn:
		return "WARN"
	case Crit:
		return "CRIT"
	case Unknown:
		return "UNKNOWN"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) marker() string {
	switch s {
	case Warn:
		return "(!)"
	case Crit:
		return "(!!)"
	case Unknown:
		return "(?)"
	}
	return ""
}

// severity orders states for aggregation: CRIT beats UNKNOWN beats WARN.
func (s State) severity() int {
	switch s {
	case OK:
		return 0
	case Warn:
		return 1
	case Unknown:
		return 2
	case Crit:
		return 3
	}
	return 2
}

// Result is one line of a verdict. Notices only show in the details unless
// their state is not OK.
type Result struct {
	State  State
	Text   string
	Notice bool
}

// Worst returns the most severe state of results, OK when empty.
func Worst(results []Result) State {
	worst := OK
	for _, r := range results {
		if r.State.severity() > worst.severity() {
			worst = r.State
		}
	}
	return worst
}

// Render formats results as check output: a summary line followed by the
// notice details.
func Render(results []Result) string {
	var summary, details []string
	for _, r := range results {
		text := r.Text + r.State.marker()
		if !r.Notice || r.State != OK {
			summary = append(summary, text)
		}
		if r.Notice {
			details = append(details, text)
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(summary, ", "))
	if len(details) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(details, "\n"))
	}
	return b.String()
}
