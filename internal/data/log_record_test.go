package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLengthAndTypeTag(t *testing.T) {
	tests := []struct {
		name string
		rec  LogRecord
	}{
		{"normal", LogRecord{Key: []byte("k1"), Value: []byte("v1"), Type: LogRecordNormal}},
		{"empty value", LogRecord{Key: []byte("k2"), Value: nil, Type: LogRecordDeleted}},
		{"empty key", LogRecord{Key: nil, Value: []byte("v"), Type: LogRecordNormal}},
		{"large value", LogRecord{Key: []byte("k3"), Value: make([]byte, 4096), Type: LogRecordNormal}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.rec)
			assert.Len(t, encoded, EncodedLen(tc.rec.Key, tc.rec.Value))
			assert.Equal(t, tc.rec.Type, encoded[0])
		})
	}
}

func TestEncodePositionRoundTrip(t *testing.T) {
	positions := []RecordPosition{
		{FileID: 0, Offset: 0},
		{FileID: 7, Offset: 123456},
		{FileID: 4294967295, Offset: 0},
	}
	for _, pos := range positions {
		decoded, err := DecodePosition(EncodePosition(pos))
		require.NoError(t, err)
		assert.Equal(t, pos, decoded)
	}
}

func TestDecodePositionRejectsGarbage(t *testing.T) {
	_, err := DecodePosition(nil)
	assert.ErrorIs(t, err, ErrFailedToParseFileID)
}

func TestEncodeHintRecordCarriesPosition(t *testing.T) {
	pos := RecordPosition{FileID: 3, Offset: 99}
	hint := EncodeHintRecord([]byte("mykey"), pos)
	assert.Equal(t, LogRecordNormal, hint[0])

	// type(1) + key_len(1) + value_len(1) + "mykey"(5), then the position.
	valueStart := 1 + 1 + 1 + len("mykey")
	wantValue := EncodePosition(pos)
	decoded, err := DecodePosition(hint[valueStart : valueStart+len(wantValue)])
	require.NoError(t, err)
	assert.Equal(t, pos, decoded)
}
