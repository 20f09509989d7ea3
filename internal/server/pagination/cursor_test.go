package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)

	cursor := Encode(ts, 42)
	gotTS, gotID, err := Decode(cursor)
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotTS))
	assert.Equal(t, int64(42), gotID)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not base64":        "!!!",
		"missing separator": "MjAyNS0wNi0wMVQxMjowMDowMFo", // no id part
		"bad timestamp":     "bm90LWEtdGltZXwzNA",           // "not-a-time|34"
	}
	for name, cursor := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode(cursor)
			assert.Error(t, err)
		})
	}
}
