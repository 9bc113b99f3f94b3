package vstore

import (
	"github.com/rs/zerolog"
)

// DiagnosticKind classifies an anomaly found in the backend.
type DiagnosticKind uint8

const (
	// DiagnosticMalformed: the stored value is not decodable in the record format.
	DiagnosticMalformed DiagnosticKind = iota + 1
	// DiagnosticInvalid: the stored value decodes but is not a record.
	DiagnosticInvalid
	// DiagnosticExpired: an expired record was found and dropped.
	DiagnosticExpired
	// DiagnosticRemoveFailed: the backend refused to remove a dead key.
	DiagnosticRemoveFailed
	// DiagnosticUndecodable: a requested version does not decode into the
	// store's value type. The record is left in place.
	DiagnosticUndecodable
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticMalformed:
		return "malformed"
	case DiagnosticInvalid:
		return "invalid"
	case DiagnosticExpired:
		return "expired"
	case DiagnosticRemoveFailed:
		return "remove_failed"
	case DiagnosticUndecodable:
		return "undecodable"
	default:
		return "unknown"
	}
}

// Diagnostic describes one anomaly. Raw holds the offending stored value for
// malformed and invalid records, and the encoded version for undecodable ones.
type Diagnostic struct {
	Kind DiagnosticKind
	Key  string
	Raw  string
	Err  error
}

// DiagnosticFunc receives diagnostics synchronously from store operations.
type DiagnosticFunc func(Diagnostic)

// LogDiagnostics returns a DiagnosticFunc that writes to logger.
func LogDiagnostics(logger zerolog.Logger) DiagnosticFunc {
	return func(d Diagnostic) {
		var ev *zerolog.Event
		switch d.Kind {
		case DiagnosticExpired:
			ev = logger.Debug()
		case DiagnosticRemoveFailed:
			ev = logger.Error()
		default:
			ev = logger.Warn()
		}
		ev = ev.Str("key", d.Key).Str("kind", d.Kind.String())
		if d.Err != nil {
			ev = ev.Err(d.Err)
		}
		if d.Raw != "" {
			ev = ev.Int("raw_bytes", len(d.Raw))
		}
		ev.Msg("verstash record anomaly")
	}
}
