// Package secret holds credential material that must never end up in logs.
package secret

import "go.uber.org/zap"

const redacted = "[REDACTED]"

// String wraps a sensitive value. Its printable representations are
// redacted; callers that need the raw value must go through Expose.
type String struct {
	v string
}

func New(v string) String { return String{v: v} }

// Expose returns the wrapped value.
func (s String) Expose() string { return s.v }

func (s String) Empty() bool { return s.v == "" }

func (s String) String() string { return redacted }

func (s String) GoString() string { return "secret.String(" + redacted + ")" }

func (s String) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

// Field is a zap field carrying only the redacted marker. It exists so a
// secret can be attached to a log entry without reaching for Expose.
func Field(key string) zap.Field { return zap.String(key, redacted) }
