package typeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeString(t *testing.T) {
	s, ok := SafeString("hello")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = SafeString(42)
	assert.False(t, ok)
	_, ok = SafeString(nil)
	assert.False(t, ok)

	assert.Equal(t, "fallback", SafeStringDefault(7, "fallback"))
	assert.Equal(t, "value", SafeStringDefault("value", "fallback"))
}

func TestSafeInt64(t *testing.T) {
	for _, v := range []any{int64(5), int(5), int32(5), uint32(5)} {
		got, ok := SafeInt64(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, int64(5), got, "%T", v)
	}
	_, ok := SafeInt64("5")
	assert.False(t, ok)
}

func TestSafeInt32(t *testing.T) {
	got, ok := SafeInt32(int64(9))
	assert.True(t, ok)
	assert.Equal(t, int32(9), got)
	_, ok = SafeInt32(1.5)
	assert.False(t, ok)
}

func TestSafeFloat64(t *testing.T) {
	for _, v := range []any{float64(2.5), float32(2.5), int(2), int64(2), int32(2)} {
		_, ok := SafeFloat64(v)
		assert.True(t, ok, "%T", v)
	}
	_, ok := SafeFloat64("2.5")
	assert.False(t, ok)
}

func TestSafeBool(t *testing.T) {
	b, ok := SafeBool(true)
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = SafeBool(1)
	assert.False(t, ok)
}

func TestSafeBytes(t *testing.T) {
	b, ok := SafeBytes([]byte{1})
	assert.True(t, ok)
	assert.Equal(t, []byte{1}, b)
	_, ok = SafeBytes("str")
	assert.False(t, ok)
}
