// Package evaluate turns SSL Labs assessments into monitoring verdicts.
package evaluate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nmollerup/sensu-check-ssllabs/internal/ssllabs"
)

const analyzeURL = "https://www.ssllabs.com/ssltest/analyze.html?d="

// ValueStore keeps the last observed grade between runs.
type ValueStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Evaluator checks one item of a section against its parameters.
type Evaluator struct {
	params *Params
	store  ValueStore
	now    func() time.Time
}

// New returns an evaluator. params must have been compiled.
func New(params *Params, store ValueStore) (*Evaluator, error) {
	if params == nil || params.score == nil {
		return nil, fmt.Errorf("parameters are not compiled")
	}
	if store == nil {
		return nil, fmt.Errorf("nil value store")
	}
	return &Evaluator{params: params, store: store, now: time.Now}, nil
}

// Check evaluates item in section. The grade history in the value store is
// updated as a side effect.
func (e *Evaluator) Check(item string, section ssllabs.Section) []Result {
	host, ok := section[item]
	if !ok {
		return []Result{{
			State: Unknown,
			Text:  fmt.Sprintf("Item %s not found in monitoring data (known hosts: %s)", item, knownHosts(section)),
		}}
	}

	var out []Result
	for _, msg := range host.Errors {
		out = append(out, Result{State: Warn, Text: msg, Notice: true})
	}

	status := ""
	if host.Status != nil {
		status = *host.Status
	}
	switch {
	case host.Status == nil:
	case status == ssllabs.StatusReady:
		out = append(out, e.checkAge(host)...)
		out = append(out, e.checkEndpoints(host)...)
	case status == ssllabs.StatusDNS:
		out = append(out, Result{State: e.params.StateDNS, Text: "DNS: " + host.StatusMessage})
		if host.StartTime != nil {
			out = append(out, Result{State: OK, Text: "Started " + e.since(*host.StartTime)})
		}
	case status == ssllabs.StatusError:
		out = append(out, Result{State: e.params.StateError, Text: "Error: " + host.StatusMessage, Notice: true})
		if host.CacheExpiryTime != nil && *host.CacheExpiryTime != 0 {
			out = append(out, Result{
				State:  OK,
				Text:   "Cache expiry time: " + renderTime(*host.CacheExpiryTime),
				Notice: true,
			})
		}
	case status == ssllabs.StatusInProgress:
		text := "Test is in progress"
		if host.StartTime != nil {
			text += ", started " + e.since(*host.StartTime)
		}
		out = append(out, Result{State: e.params.StateInProgress, Text: text})
		out = append(out, e.checkEndpoints(host)...)
	default:
		out = append(out, Result{State: Unknown, Text: "Unknown test status: " + status, Notice: true})
	}

	out = append(out, Result{State: OK, Text: "For full details go to " + analyzeURL + item, Notice: true})

	if e.params.Details {
		out = append(out, e.details(host)...)
	}
	return out
}

func (e *Evaluator) checkEndpoints(host ssllabs.HostResult) []Result {
	var out []Result
	out = append(out, e.checkGrades(host)...)
	out = append(out, e.checkHasWarnings(host.Endpoints)...)
	out = append(out, e.checkIsExceptional(host.Endpoints)...)
	out = append(out, checkStatus(host.Endpoints)...)
	return out
}

func (e *Evaluator) checkAge(host ssllabs.HostResult) []Result {
	if host.TestTime == nil {
		return []Result{{State: Warn, Text: "Last tested: no test time reported"}}
	}
	tested := time.UnixMilli(*host.TestTime)
	age := e.now().Sub(tested)

	state := OK
	warn := time.Duration(e.params.AgeWarnDays) * 24 * time.Hour
	crit := time.Duration(e.params.AgeCritDays) * 24 * time.Hour
	switch {
	case crit > 0 && age >= crit:
		state = Crit
	case warn > 0 && age >= warn:
		state = Warn
	}

	text := "Last tested: " + e.since(*host.TestTime)
	if state != OK {
		text += fmt.Sprintf(" (warn/crit at %s/%s)", days(e.params.AgeWarnDays), days(e.params.AgeCritDays))
	}
	return []Result{{State: state, Text: text}}
}

func (e *Evaluator) checkGrades(host ssllabs.HostResult) []Result {
	grades := map[string]struct{}{}
	for _, ep := range host.Endpoints {
		if ep.Grade != nil {
			grades[*ep.Grade] = struct{}{}
		}
	}

	switch len(grades) {
	case 0:
		return []Result{{State: e.params.NoGrade, Text: "No grade information found", Notice: true}}
	case 1:
		var grade string
		for g := range grades {
			grade = g
		}
		out := []Result{e.gradeResult("", grade, false)}
		if last, ok := e.store.Get(host.Host); ok {
			out = append(out, Result{State: OK, Text: "Last grade: " + last})
		}
		e.store.Set(host.Host, grade)
		return out
	}

	var out []Result
	for _, ep := range host.Endpoints {
		name := ep.Name()
		last, hasLast := e.store.Get(name)
		switch {
		case ep.Grade != nil:
			out = append(out, e.gradeResult(name, *ep.Grade, true))
			if hasLast {
				out = append(out, Result{State: OK, Text: name + " last grade: " + last, Notice: true})
			}
			e.store.Set(name, *ep.Grade)
		case hasLast:
			out = append(out, e.gradeResult(name+" Last", last, true))
		}
	}
	return out
}

func (e *Evaluator) gradeResult(name, grade string, notice bool) Result {
	return Result{
		State:  e.params.gradeState(grade),
		Text:   strings.TrimSpace(name + " Grade: " + grade),
		Notice: notice,
	}
}

func (e *Evaluator) checkHasWarnings(endpoints []ssllabs.Endpoint) []Result {
	values := map[bool]struct{}{}
	for _, ep := range endpoints {
		if ep.HasWarnings != nil {
			values[*ep.HasWarnings] = struct{}{}
		}
	}
	if _, yes := values[true]; yes && len(values) == 1 {
		return []Result{{State: e.params.HasWarnings, Text: "Has warnings", Notice: true}}
	}

	var out []Result
	for _, ep := range endpoints {
		if ep.HasWarnings != nil && *ep.HasWarnings {
			out = append(out, Result{State: e.params.HasWarnings, Text: ep.Name() + ": has warnings", Notice: true})
		}
	}
	return out
}

func (e *Evaluator) checkIsExceptional(endpoints []ssllabs.Endpoint) []Result {
	values := map[bool]struct{}{}
	for _, ep := range endpoints {
		if ep.IsExceptional != nil {
			values[*ep.IsExceptional] = struct{}{}
		}
	}
	if _, no := values[false]; no && len(values) == 1 {
		return []Result{{State: e.params.IsExceptional, Text: "Is not exceptional", Notice: true}}
	}

	var out []Result
	for _, ep := range endpoints {
		if ep.IsExceptional != nil && !*ep.IsExceptional {
			out = append(out, Result{State: e.params.IsExceptional, Text: ep.Name() + ": is not exceptional", Notice: true})
		}
	}
	return out
}

var acceptedEndpointStatus = map[string]bool{
	"ready":       true,
	"in progress": true,
	"pending":     true,
}

func checkStatus(endpoints []ssllabs.Endpoint) []Result {
	var out []Result
	for _, ep := range endpoints {
		msg := "(none)"
		if ep.StatusMessage != nil {
			msg = *ep.StatusMessage
			if acceptedEndpointStatus[strings.ToLower(msg)] {
				continue
			}
		}
		out = append(out, Result{State: Warn, Text: fmt.Sprintf("Status %s: %s", ep.Name(), msg), Notice: true})
	}
	return out
}

func (e *Evaluator) details(host ssllabs.HostResult) []Result {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("\nHost details")
	add("Host: %s", host.Host)
	add("Port: %s", intText(host.Port))
	add("Protocol: %s", host.Protocol)
	if host.StartTime != nil {
		add("Start Time: %s", renderTime(*host.StartTime))
	}
	if host.TestTime != nil {
		add("Test Time: %s", renderTime(*host.TestTime))
	}
	add("Engine version: %s", host.EngineVersion)
	add("Criteria version: %s", host.CriteriaVersion)
	if host.Status != nil {
		add("Status: %s", *host.Status)
	}
	if host.FromAgentCache != nil {
		add("From agent cache: %t", *host.FromAgentCache)
	} else {
		add("Live data")
	}

	if len(host.Endpoints) > 0 {
		add("\nEndpoints")
	}
	for _, ep := range host.Endpoints {
		add("Server name: %s", ep.ServerName)
		add("IP-Address: %s", ep.IPAddress)
		if ep.StatusMessage != nil {
			add("Status Message: %s", *ep.StatusMessage)
		}
		if ep.StatusDetailsMessage != "" {
			add("Status Details: %s", ep.StatusDetailsMessage)
		}
		if ep.Grade != nil {
			add("Grade: %s", *ep.Grade)
		}
		if last, ok := e.store.Get(ep.Name()); ok {
			add("Last grade: %s", last)
		}
		if ep.GradeTrustIgnored != nil {
			add("Grade Trust Ignored: %s", *ep.GradeTrustIgnored)
		}
		if ep.HasWarnings != nil {
			add("has warnings: %t", *ep.HasWarnings)
		}
		if ep.IsExceptional != nil {
			add("is exceptional: %t", *ep.IsExceptional)
		}
		if ep.Progress != nil {
			add("progress: %d", *ep.Progress)
		}
		if ep.Duration != nil {
			add("duration: %s", time.Duration(*ep.Duration)*time.Millisecond)
		}
		add("delegation: %s", intText(ep.Delegation))
	}

	out := make([]Result, 0, len(lines))
	for _, l := range lines {
		out = append(out, Result{State: OK, Text: l, Notice: true})
	}
	return out
}

func (e *Evaluator) since(millis int64) string {
	return humanize.RelTime(time.UnixMilli(millis), e.now(), "ago", "from now")
}

func renderTime(millis int64) string {
	return time.UnixMilli(millis).UTC().Format("2006-01-02 15:04:05 MST")
}

func days(n int) string {
	if n <= 0 {
		return "-"
	}
	if n == 1 {
		return "1 day"
	}
	return strconv.Itoa(n) + " days"
}

func intText(i *int64) string {
	if i == nil {
		return "-"
	}
	return strconv.FormatInt(*i, 10)
}

func knownHosts(section ssllabs.Section) string {
	if len(section) == 0 {
		return "none"
	}
	return strings.Join(section.Hosts(), ", ")
}
