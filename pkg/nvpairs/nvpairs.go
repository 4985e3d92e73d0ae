// Package nvpairs implements ordered name/value pair lists used for flat
// configuration snapshots and protocol properties. Lists preserve
// insertion order; equality is order-insensitive but requires identical
// name sets and values.
package nvpairs

import (
	"sort"
	"strconv"
)

// Pair is a single (name, value) entry. Both strings are non-empty in a
// well-formed list.
type Pair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// List is an ordered sequence of pairs. The zero value is an empty list
// ready for use.
type List []Pair

// Add returns the list with (name, value) appended.
func (l List) Add(name, value string) List {
	return append(l, Pair{Name: name, Value: value})
}

// Value looks up the value for name. The second return is false when the
// name is absent.
func (l List) Value(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, p := range l {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Int64Value parses the named value as a signed integer. Parsing is
// strict: the whole string must convert, and base prefixes (0x, 0) are
// honored. On absence or parse failure ok is false and v is zero.
func (l List) Int64Value(name string) (v int64, ok bool) {
	s, present := l.Value(name)
	if !present || s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Uint64Value parses the named value as an unsigned integer with the
// same strictness as Int64Value.
func (l List) Uint64Value(name string) (v uint64, ok bool) {
	s, present := l.Value(name)
	if !present || s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Float64Value parses the named value as a float. The whole string must
// convert.
func (l List) Float64Value(name string) (v float64, ok bool) {
	s, present := l.Value(name)
	if !present || s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// BoolValue parses the named value as a boolean ("true"/"false", "1"/"0").
func (l List) BoolValue(name string) (v bool, ok bool) {
	s, present := l.Value(name)
	if !present || s == "" {
		return false, false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return b, true
}

// Clone returns a structural copy of the list.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}

// Equal reports set equality: both lists carry the same name set with
// equal values, regardless of order. Names occurring more than once are
// compared as multisets.
func (l List) Equal(other List) bool {
	if len(l) != len(other) {
		return false
	}
	return canonical(l) == canonical(other)
}

// canonical builds an order-independent fingerprint of the list.
func canonical(l List) string {
	entries := make([]string, len(l))
	for i, p := range l {
		entries[i] = p.Name + "\x00" + p.Value + "\x01"
	}
	sort.Strings(entries)
	var out string
	for _, e := range entries {
		out += e
	}
	return out
}
