package nvpairs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestList_Value(t *testing.T) {
	l := List{}.Add("Host", "localhost").Add("Port", "49990")

	v, ok := l.Value("Host")
	assert.True(t, ok)
	assert.Equal(t, "localhost", v)

	_, ok = l.Value("Missing")
	assert.False(t, ok)

	_, ok = l.Value("")
	assert.False(t, ok)
}

func TestList_TypedAccessors(t *testing.T) {
	l := List{}.
		Add("Port", "49990").
		Add("Negative", "-12").
		Add("Hex", "0x1f").
		Add("Float", "2.5").
		Add("Trailing", "10q").
		Add("Spaced", " 10").
		Add("Bool", "true").
		Add("Empty", "")

	tests := []struct {
		name   string
		check  func() bool
		wantOK bool
	}{
		{"int ok", func() bool { v, ok := l.Int64Value("Port"); return ok && v == 49990 }, true},
		{"int negative", func() bool { v, ok := l.Int64Value("Negative"); return ok && v == -12 }, true},
		{"int base prefix", func() bool { v, ok := l.Int64Value("Hex"); return ok && v == 31 }, true},
		{"int trailing junk rejected", func() bool { _, ok := l.Int64Value("Trailing"); return !ok }, true},
		{"int leading space rejected", func() bool { _, ok := l.Int64Value("Spaced"); return !ok }, true},
		{"int absent", func() bool { _, ok := l.Int64Value("Nope"); return !ok }, true},
		{"int empty value", func() bool { _, ok := l.Int64Value("Empty"); return !ok }, true},
		{"uint rejects negative", func() bool { _, ok := l.Uint64Value("Negative"); return !ok }, true},
		{"uint ok", func() bool { v, ok := l.Uint64Value("Port"); return ok && v == 49990 }, true},
		{"float ok", func() bool { v, ok := l.Float64Value("Float"); return ok && v == 2.5 }, true},
		{"float trailing junk rejected", func() bool { _, ok := l.Float64Value("Trailing"); return !ok }, true},
		{"bool ok", func() bool { v, ok := l.BoolValue("Bool"); return ok && v }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantOK, tc.check())
		})
	}
}

func TestList_CloneEqual(t *testing.T) {
	l := List{}.Add("a", "1").Add("b", "2")

	dup := l.Clone()
	assert.True(t, l.Equal(dup))

	// Mutating the copy does not affect the original.
	dup[0].Value = "changed"
	assert.False(t, l.Equal(dup))
	v, _ := l.Value("a")
	assert.Equal(t, "1", v)
}

func TestList_EqualOrderInsensitive(t *testing.T) {
	a := List{}.Add("a", "1").Add("b", "2")
	b := List{}.Add("b", "2").Add("a", "1")
	assert.True(t, a.Equal(b))

	// Key set sensitivity.
	c := List{}.Add("a", "1").Add("c", "2")
	assert.False(t, a.Equal(c))

	// Value sensitivity.
	d := List{}.Add("a", "1").Add("b", "3")
	assert.False(t, a.Equal(d))

	// Duplicate names compare as multisets.
	e := List{}.Add("a", "1").Add("a", "2")
	f := List{}.Add("a", "2").Add("a", "1")
	assert.True(t, e.Equal(f))
	g := List{}.Add("a", "1").Add("a", "1")
	assert.False(t, e.Equal(g))
}

func TestProtocols(t *testing.T) {
	ps := Protocols{}.
		Add("modbus-tcp", List{}.Add("Address", "10.0.0.5").Add("Port", "502")).
		Add("other", nil)

	props, ok := ps.Properties("modbus-tcp")
	assert.True(t, ok)
	v, _ := props.Value("Port")
	assert.Equal(t, "502", v)

	_, ok = ps.Properties("missing")
	assert.False(t, ok)

	dup := ps.Clone()
	assert.True(t, ps.Equal(dup))

	// Deep copy: mutate nested properties of the clone.
	dup[0].Properties[0].Value = "10.9.9.9"
	assert.False(t, ps.Equal(dup))

	// Order insensitive across protocols.
	rev := Protocols{}.
		Add("other", nil).
		Add("modbus-tcp", List{}.Add("Address", "10.0.0.5").Add("Port", "502"))
	assert.True(t, ps.Equal(rev))
}
