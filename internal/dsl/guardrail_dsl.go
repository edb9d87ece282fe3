package dsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Operator string

const (
	// GreaterOrEqual guardrails require the metric to stay at or above the threshold.
	GreaterOrEqual Operator = "gte"
	// LessOrEqual guardrails require the metric to stay at or below the threshold.
	LessOrEqual Operator = "lte"
)

func (o Operator) Valid() bool {
	return o == GreaterOrEqual || o == LessOrEqual
}

// Breached reports whether value violates a guardrail of this operator.
func (o Operator) Breached(value, threshold float64) bool {
	switch o {
	case GreaterOrEqual:
		return value < threshold
	case LessOrEqual:
		return value > threshold
	default:
		return false
	}
}

func (o Operator) Symbol() string {
	switch o {
	case GreaterOrEqual:
		return ">="
	case LessOrEqual:
		return "<="
	default:
		return string(o)
	}
}

type Action string

const (
	ActionNone     Action = ""
	ActionWarn     Action = "warn"
	ActionAbort    Action = "abort"
	ActionRollback Action = "rollback"
)

func (a Action) Valid() bool {
	return a == ActionWarn || a == ActionAbort || a == ActionRollback
}

// Rank orders actions by how much they interrupt an experiment.
func (a Action) Rank() int {
	switch a {
	case ActionWarn:
		return 1
	case ActionAbort:
		return 2
	case ActionRollback:
		return 3
	default:
		return 0
	}
}

// Severity is the event severity recorded for a breach of this action.
func (a Action) Severity() Severity {
	switch a {
	case ActionAbort, ActionRollback:
		return Critical
	case ActionWarn:
		return Warning
	default:
		return Info
	}
}

type Severity string

const (
	Info     Severity = "info"
	Warning  Severity = "warning"
	High     Severity = "high"
	Critical Severity = "critical"
)

func (s Severity) Rank() int {
	switch s {
	case Info:
		return 1
	case Warning:
		return 2
	case High:
		return 3
	case Critical:
		return 4
	default:
		return 0
	}
}

func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("unknown severity: %q", s)
	}
	return sev, nil
}

type Comparator string

const (
	AtLeast  Comparator = ">="
	AtMost   Comparator = "<="
	Above    Comparator = ">"
	Below    Comparator = "<"
	Equal    Comparator = "=="
	NotEqual Comparator = "!="
)

// longest prefixes first so ">=" is not read as ">"
var comparators = []Comparator{AtLeast, AtMost, Equal, NotEqual, Above, Below}

const epsilon = 1e-9

// Criterion is a parsed success-criteria expression such as ">=95".
type Criterion struct {
	Comparator Comparator `json:"comparator"`
	Value      float64    `json:"value"`
	Raw        string     `json:"raw"`
}

// ParseCriterion parses expressions of the form "<comparator><number>".
// A bare number means equality.
func ParseCriterion(expr string) (Criterion, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return Criterion{}, fmt.Errorf("empty criterion")
	}

	cmp := Equal
	rest := raw
	for _, c := range comparators {
		if strings.HasPrefix(raw, string(c)) {
			cmp = c
			rest = strings.TrimSpace(raw[len(c):])
			break
		}
	}
	rest = strings.TrimSuffix(rest, "%")

	value, err := strconv.ParseFloat(rest, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Criterion{}, fmt.Errorf("criterion %q: %q is not a number", expr, rest)
	}

	return Criterion{Comparator: cmp, Value: value, Raw: raw}, nil
}

func (c Criterion) Satisfied(actual float64) bool {
	switch c.Comparator {
	case AtLeast:
		return actual >= c.Value
	case AtMost:
		return actual <= c.Value
	case Above:
		return actual > c.Value
	case Below:
		return actual < c.Value
	case Equal:
		return math.Abs(actual-c.Value) < epsilon
	case NotEqual:
		return math.Abs(actual-c.Value) >= epsilon
	default:
		return false
	}
}

func (c Criterion) String() string {
	return fmt.Sprintf("%s%s", c.Comparator, strconv.FormatFloat(c.Value, 'f', -1, 64))
}
