package table

import "github.com/tablefabric/vtable/internal/value"

// Typed wraps a base Accessor, caching the decoded storage kind and
// nullability at creation time. Its Get does not panic when the stored
// kind can't be coerced: it returns the kind's default value, and the
// conversion error is captured for inspection (LastGetError) rather
// than raised out of the table.
type Typed struct {
	base     *Accessor
	kind     value.Kind
	nullable bool
	lastErr  error
}

// NewTyped wraps base, decoding (kind, nullable) from a zero value of
// the caller's desired Go type — e.g. NewTyped(a, int32(0)) or
// NewTyped(a, (*int32)(nil)) for a nullable int32.
func NewTyped(base *Accessor, zero any) *Typed {
	kind, nullable := value.DecodeStatic(zero)
	return &Typed{base: base, kind: kind, nullable: nullable}
}

// Get returns the accessor's value converted to the typed accessor's
// decoded kind. On conversion failure it records the error (retrievable
// via LastGetError) and returns the kind's default value.
func (t *Typed) Get() value.Value {
	v, err := t.base.Value().ConvertTo(t.kind, t.nullable)
	t.lastErr = err
	return v
}

// Set encodes v through the same decoded (kind, nullable) parameters
// and routes it through the base accessor.
func (t *Typed) Set(v value.Value) error {
	enc, err := v.ConvertTo(t.kind, t.nullable)
	if err != nil {
		return err
	}
	t.base.Set(enc)
	return nil
}

// LastGetError returns the error from the most recent Get conversion,
// or nil if it succeeded.
func (t *Typed) LastGetError() error { return t.lastErr }

// Base returns the underlying untyped accessor.
func (t *Typed) Base() *Accessor { return t.base }
