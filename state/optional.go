package state

import (
	"bytes"
	"encoding/json"
	"time"
)

// Optional records whether a field was present in a payload, and whether
// it was present as null. Partial updates only touch present fields.
type Optional[T any] struct {
	set  bool
	null bool
	val  T
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] { return Optional[T]{set: true, val: v} }

// Null returns a present Optional holding JSON null.
func Null[T any]() Optional[T] { return Optional[T]{set: true, null: true} }

// Present reports whether the field appeared in the payload.
func (o Optional[T]) Present() bool { return o.set }

// IsNull reports whether the field appeared as null.
func (o Optional[T]) IsNull() bool { return o.set && o.null }

// Get returns the value and whether it is present and non-null.
func (o Optional[T]) Get() (T, bool) { return o.val, o.set && !o.null }

// Or returns the value, or def when absent or null.
func (o Optional[T]) Or(def T) T {
	if o.set && !o.null {
		return o.val
	}
	return def
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		var zero T
		o.null, o.val = true, zero
		return nil
	}
	o.null = false
	return json.Unmarshal(b, &o.val)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.val)
}

// assign copies a present field into dst; null becomes the zero value.
func assign[T any](dst *T, o Optional[T]) {
	if o.set {
		*dst = o.val
	}
}

func assignTime(dst **time.Time, o Optional[time.Time]) {
	if !o.set {
		return
	}
	if o.null {
		*dst = nil
		return
	}
	t := o.val
	*dst = &t
}
