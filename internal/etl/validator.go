package etl

import (
	"fmt"
	"maps"

	"github.com/DjordjeVuckovic/etl-runner/internal/output"
)

// Severity decides what a failed Rule does to the transform call.
type Severity string

const (
	// Warn tallies the failure and lets processing continue.
	Warn Severity = "warn"
	// Fail aborts the whole transform call.
	Fail Severity = "fail"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case Warn, Fail:
		return Severity(s), nil
	case "":
		return Warn, nil
	default:
		return "", ConfigurationError("severity", "unknown severity %q, expected %q or %q", s, Warn, Fail)
	}
}

// WarnPolicy decides what happens to a record that failed Warn rules.
type WarnPolicy string

const (
	// WarnPass loads the record unmodified.
	WarnPass WarnPolicy = "pass"
	// WarnDrop skips the record.
	WarnDrop WarnPolicy = "drop"
)

func ParseWarnPolicy(s string) (WarnPolicy, error) {
	switch WarnPolicy(s) {
	case WarnPass, WarnDrop:
		return WarnPolicy(s), nil
	case "":
		return WarnPass, nil
	default:
		return "", ConfigurationError("warn_policy", "unknown warn policy %q, expected %q or %q", s, WarnPass, WarnDrop)
	}
}

// Rule is a per-record predicate.
type Rule struct {
	Severity    Severity
	Description string
	Check       func(record Record) bool
}

func WarnRule(description string, check func(Record) bool) Rule {
	return Rule{Severity: Warn, Description: description, Check: check}
}

func FailRule(description string, check func(Record) bool) Rule {
	return Rule{Severity: Fail, Description: description, Check: check}
}

// Chain runs rules in order and tallies Warn failures by description.
// Transformers embed a Chain to get ReportValidation for free.
type Chain struct {
	rules    []Rule
	failures map[string]int
	order    []string
	policy   WarnPolicy
}

func NewChain(policy WarnPolicy, rules ...Rule) *Chain {
	if policy == "" {
		policy = WarnPass
	}
	return &Chain{rules: rules, policy: policy, failures: make(map[string]int)}
}

func (c *Chain) Add(rules ...Rule) {
	c.rules = append(c.rules, rules...)
}

func (c *Chain) Policy() WarnPolicy {
	return c.policy
}

// Validate runs every rule against record. It returns a transformer error
// wrapping a validation error as soon as a Fail rule rejects the record.
// passed is false when any Warn rule rejected it.
func (c *Chain) Validate(record Record) (passed bool, err error) {
	passed = true
	for _, r := range c.rules {
		if r.Check(record) {
			continue
		}
		c.tally(r.Description)
		if r.Severity == Fail {
			v := ValidationError("", "validator [%s] failed", r.Description)
			return false, TransformerError("transform", v, "")
		}
		passed = false
	}
	return passed, nil
}

// Admit validates record and applies the warn policy: keep is false when the
// record must not produce a command.
func (c *Chain) Admit(record Record) (keep bool, err error) {
	passed, err := c.Validate(record)
	if err != nil {
		return false, err
	}
	if !passed && c.policy == WarnDrop {
		return false, nil
	}
	return true, nil
}

func (c *Chain) tally(description string) {
	if c.failures == nil {
		c.failures = make(map[string]int)
	}
	if _, seen := c.failures[description]; !seen {
		c.order = append(c.order, description)
	}
	c.failures[description]++
}

// Failures returns a copy of the current tally.
func (c *Chain) Failures() map[string]int {
	return maps.Clone(c.failures)
}

// ReportValidation prints the tally in first-seen order and clears it.
func (c *Chain) ReportValidation(out output.Writer) {
	if len(c.failures) > 0 {
		out.Writeln("")
		out.Tagged(output.TagComment, "Validation notices:")
		for _, d := range c.order {
			out.Writeln(fmt.Sprintf("- [%s]: [%d]", d, c.failures[d]))
		}
	}
	out.Writeln("")

	clear(c.failures)
	c.order = c.order[:0]
}

// Descriptions lists the rule descriptions in evaluation order.
func (c *Chain) Descriptions() []string {
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.Description)
	}
	return out
}
