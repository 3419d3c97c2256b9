package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to an event. Later fields overwrite earlier ones with
// the same key in JSON output.
type Field func(*zerolog.Event)

// Keys shared by every component, so console lines and the JSON file can be
// filtered the same way.
const (
	KeyComp   = "comp"
	KeySignal = "signal"
	KeySub    = "key"
	KeyStep   = "step"
	KeyStack  = "stack"
)

// Comp tags a component logger ("app", "storage", "signalgen", ...).
func Comp(name string) Field { return String(KeyComp, name) }

// Signal names the dispatcher a line is about.
func Signal(name string) Field { return String(KeySignal, name) }

// Key names a subscriber key.
func Key(key string) Field { return String(KeySub, key) }

// Step is an epoch step number.
func Step(step int64) Field { return Int64(KeyStep, step) }

func String(k, v string) Field {
	return func(e *zerolog.Event) { e.Str(k, v) }
}
func Int(k string, v int) Field {
	return func(e *zerolog.Event) { e.Int(k, v) }
}
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Uint64(k string, v uint64) Field {
	return func(e *zerolog.Event) { e.Uint64(k, v) }
}
func Bool(k string, v bool) Field {
	return func(e *zerolog.Event) { e.Bool(k, v) }
}
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field {
	return func(e *zerolog.Event) { e.Time(k, v) }
}
func Any(k string, v any) Field {
	return func(e *zerolog.Event) { e.Interface(k, v) }
}

// Err is a no-op for a nil error.
func Err(err error) Field {
	if err == nil {
		return nil
	}
	return func(e *zerolog.Event) { e.Err(err) }
}

// Stack attaches a captured stack trace; empty stacks are dropped.
func Stack(stack []byte) Field {
	if len(stack) == 0 {
		return nil
	}
	return func(e *zerolog.Event) { e.Bytes(KeyStack, stack) }
}
