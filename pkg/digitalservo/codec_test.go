package digitalservo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictRoundTripScalar(t *testing.T) {
	d := Dict{Key: 0x10, Values: []PrimitiveData{F32(3.5)}}
	buf, err := d.Serialize()
	require.NoError(t, err)

	got, err := DecodeDict(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 0x10, got.Key)
	require.Len(t, got.Values, 1)
	assert.InDelta(t, 3.5, got.Values[0].AsFloat64(), 1e-6)
}

func TestDictRoundTripVector(t *testing.T) {
	d := Dict{Key: 0x20, Values: []PrimitiveData{U16(1), U16(2), U16(3)}}
	buf, err := d.Serialize()
	require.NoError(t, err)
	assert.Equal(t, 3, int(buf[3]))

	key, values, err := GetVectorResponse(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 0x20, key)
	require.Len(t, values, 3)
	assert.EqualValues(t, 2, values[1].AsUint64())
}

func TestDictRejectsMixedKinds(t *testing.T) {
	d := Dict{Key: 0x10, Values: []PrimitiveData{U8(1), F32(2)}}
	_, err := d.Serialize()
	assert.Error(t, err)
}

func TestDictRejectsEmptyValues(t *testing.T) {
	d := Dict{Key: 0x10}
	_, err := d.Serialize()
	assert.Error(t, err)
}

func TestStrRoundTrip(t *testing.T) {
	s := Str{Key: 0x42}
	buf := s.Serialize()
	got, err := DecodeStr(buf)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestGetScalarResponseRejectsVector(t *testing.T) {
	d := Dict{Key: 0x10, Values: []PrimitiveData{U8(1), U8(2)}}
	buf, _ := d.Serialize()
	_, _, err := GetScalarResponse(buf)
	assert.Error(t, err)
}

func TestDecodeDictShortPayload(t *testing.T) {
	_, err := DecodeDict([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestDecodeDictTruncatedValues(t *testing.T) {
	buf := []byte{0x01, 0x00, byte(KindU32), 2, 0xFF} // promises two u32s, has one byte
	_, err := DecodeDict(buf)
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestIsAllZeroStatus(t *testing.T) {
	assert.True(t, IsAllZeroStatus([]byte{0, 0, 0}))
	assert.True(t, IsAllZeroStatus(nil))
	assert.False(t, IsAllZeroStatus([]byte{0, 1, 0}))
}

func TestI64AndI32Signedness(t *testing.T) {
	assert.EqualValues(t, -5, int64(I64(-5).AsFloat64()))
	assert.EqualValues(t, -5, int32(I32(-5).AsFloat64()))
	assert.EqualValues(t, -5, int16(I16(-5).AsFloat64()))
	assert.EqualValues(t, -5, int8(I8(-5).AsFloat64()))
}

func TestF64RoundTrip(t *testing.T) {
	d := Dict{Key: 1, Values: []PrimitiveData{F64(1.23456789)}}
	buf, _ := d.Serialize()
	_, v, err := GetScalarResponse(buf)
	require.NoError(t, err)
	assert.InDelta(t, 1.23456789, v.AsFloat64(), 1e-12)
}
