package codec

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValuePrefixRoundTrip(t *testing.T) {
	kv, err := NewKeyValue[int64, string]("ns:test3:", Int64, Text)
	require.NoError(t, err)
	assert.False(t, kv.Passthrough())

	raw, err := kv.EncodeKey(1)
	require.NoError(t, err)
	assert.Equal(t, "ns:test3:\x00\x00\x00\x00\x00\x00\x00\x01", raw)

	k, err := kv.DecodeKey(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1), k)

	b, err := kv.EncodeValue("Str")
	require.NoError(t, err)
	assert.Equal(t, []byte("Str"), b, "values are never prefixed")

	v, err := kv.DecodeValue(b)
	require.NoError(t, err)
	assert.Equal(t, "Str", v)
}

func TestKeyValueNoPrefix(t *testing.T) {
	kv, err := NewKeyValue[uuid.UUID, string]("", UUID, Text)
	require.NoError(t, err)

	u := uuid.New()
	raw, err := kv.EncodeKey(u)
	require.NoError(t, err)
	assert.Equal(t, u.String(), raw)

	got, err := kv.DecodeKey(raw)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestKeyValueMalformedKey(t *testing.T) {
	kv, err := NewKeyValue[int64, string]("p:", Int64, Text)
	require.NoError(t, err)

	_, err = kv.DecodeKey("p:\x01\x02")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedKey)
	assert.ErrorIs(t, err, ErrMalformed)

	var mk *MalformedKeyError
	require.True(t, errors.As(err, &mk))
	assert.Equal(t, "p:", mk.Prefix)
	assert.Equal(t, []byte{1, 2}, mk.Raw)
	assert.Contains(t, mk.Error(), `"p:"`)

	_, err = kv.DecodeKey("x")
	assert.ErrorIs(t, err, ErrMalformedKey, "key without the prefix")
}

func TestKeyValueEnumKeyUnknownVariant(t *testing.T) {
	kv, err := NewKeyValue[color, int32]("c:", colorType(), Int32)
	require.NoError(t, err)

	_, err = kv.DecodeKey("c:PURPLE")
	assert.ErrorIs(t, err, ErrUnknownVariant)
	assert.NotErrorIs(t, err, ErrMalformedKey)
}

func TestKeyValuePassthrough(t *testing.T) {
	fast, err := NewKeyValue[string, string]("", Text, Text)
	require.NoError(t, err)
	assert.True(t, fast.Passthrough())

	slow, err := NewKeyValue[string, string]("", StringEnum("Any", "k"), Text)
	require.NoError(t, err)
	assert.False(t, slow.Passthrough())

	for _, k := range []string{"", "k", "中文😈"} {
		a, err := fast.EncodeKey(k)
		require.NoError(t, err)
		dk, err := fast.DecodeKey(a)
		require.NoError(t, err)
		assert.Equal(t, k, dk)

		b, err := fast.EncodeValue(k)
		require.NoError(t, err)
		dv, err := fast.DecodeValue(b)
		require.NoError(t, err)
		assert.Equal(t, k, dv)
	}

	prefixed, err := NewKeyValue[string, string]("p", Text, Text)
	require.NoError(t, err)
	assert.False(t, prefixed.Passthrough())
}

func TestNewKeyValueRejectsMismatch(t *testing.T) {
	_, err := NewKeyValue[string, string]("", Int64, Text)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = NewKeyValue[string, int64]("", Text, Text)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
