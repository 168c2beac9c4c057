package check

import (
	"encoding/json"
	"fmt"
)

// Severity ranks the outcome of an evaluation. The order is total and
// ascending: Success < Warning < Error < InternalError. Aggregation at every
// level of the configuration tree takes the maximum severity among children,
// so Success is the identity of the fold and an empty checklist evaluates to
// Success.
//
// InternalError is reserved for evaluations that could not be carried out at
// all (type mismatch, empty sample series, broken comparison); it is never
// produced by an ordinary comparison failure, so a report reader can tell
// "the check caught a problem" apart from "the check itself is broken".
type Severity int

const (
	Success Severity = iota
	Warning
	Error
	InternalError
)

func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case InternalError:
		return "internal_error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Max returns the higher-ranked of s and o.
func (s Severity) Max(o Severity) Severity {
	if o > s {
		return o
	}
	return s
}

// ParseSeverity accepts the ordinal encoding used in configuration files
// (0=success, 1=warning, 2=error, 3=internal_error).
func ParseSeverity(ordinal int) (Severity, error) {
	if ordinal < int(Success) || ordinal > int(InternalError) {
		return Success, fmt.Errorf("unknown severity ordinal %d", ordinal)
	}
	return Severity(ordinal), nil
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		var ordinal int
		if err := json.Unmarshal(b, &ordinal); err != nil {
			return err
		}
		sev, err := ParseSeverity(ordinal)
		if err != nil {
			return err
		}
		*s = sev
		return nil
	}
	for _, sev := range []Severity{Success, Warning, Error, InternalError} {
		if sev.String() == name {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", name)
}
