package evaluate

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default grade patterns.
const (
	DefaultScoreOK   = "A"
	DefaultScoreWarn = "B|C"
	DefaultScoreCrit = "D|E|F|M|T"
)

// Params configures the grade evaluation.
type Params struct {
	ScoreOK   string `yaml:"score_ok"`
	ScoreWarn string `yaml:"score_warn"`
	ScoreCrit string `yaml:"score_crit"`

	// AgeWarnDays and AgeCritDays bound the age of the last test; 0 disables.
	AgeWarnDays int `yaml:"age_warn" validate:"min=0"`
	AgeCritDays int `yaml:"age_crit" validate:"min=0"`

	NoGrade         State `yaml:"no_grade" validate:"min=0,max=3"`
	HasWarnings     State `yaml:"has_warnings" validate:"min=0,max=3"`
	IsExceptional   State `yaml:"is_exceptional" validate:"min=0,max=3"`
	StateDNS        State `yaml:"state_dns" validate:"min=0,max=3"`
	StateError      State `yaml:"state_error" validate:"min=0,max=3"`
	StateInProgress State `yaml:"state_in_progress" validate:"min=0,max=3"`

	Details bool `yaml:"details"`

	score *score
}

type score struct {
	ok, warn, crit *regexp.Regexp
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		ScoreOK:         DefaultScoreOK,
		ScoreWarn:       DefaultScoreWarn,
		ScoreCrit:       DefaultScoreCrit,
		NoGrade:         Warn,
		HasWarnings:     Warn,
		IsExceptional:   Warn,
		StateDNS:        OK,
		StateError:      Warn,
		StateInProgress: OK,
	}
}

// LoadFile overlays the keys present in a YAML file onto p.
func (p *Params) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read params file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parse params file %s: %w", path, err)
	}
	p.score = nil
	return nil
}

// Compile validates p and compiles the grade patterns. It must succeed before
// p is used for evaluation.
func (p *Params) Compile(validate *validator.Validate) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if p.AgeWarnDays > 0 && p.AgeCritDays > 0 && p.AgeCritDays < p.AgeWarnDays {
		return fmt.Errorf("age critical (%d days) cannot be lower than age warning (%d days)",
			p.AgeCritDays, p.AgeWarnDays)
	}

	var s score
	for _, c := range []struct {
		name    string
		pattern string
		dst     **regexp.Regexp
	}{
		{"ok", p.ScoreOK, &s.ok},
		{"warn", p.ScoreWarn, &s.warn},
		{"crit", p.ScoreCrit, &s.crit},
	} {
		re, err := regexp.Compile(`^(?:` + c.pattern + `)`)
		if err != nil {
			return fmt.Errorf("invalid %s grade pattern %q: %w", c.name, c.pattern, err)
		}
		*c.dst = re
	}
	p.score = &s
	return nil
}

// gradeState matches grade against the OK, WARN and CRIT patterns in order.
func (p *Params) gradeState(grade string) State {
	switch {
	case p.score.ok.MatchString(grade):
		return OK
	case p.score.warn.MatchString(grade):
		return Warn
	case p.score.crit.MatchString(grade):
		return Crit
	}
	return Unknown
}
