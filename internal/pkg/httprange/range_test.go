package httprange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	const size = 1000

	tests := []struct {
		name    string
		header  string
		want    *ByteRange
		wantErr error
	}{
		{
			name:   "absent header serves full content",
			header: "",
			want:   nil,
		},
		{
			name:   "explicit window",
			header: "bytes=0-99",
			want:   &ByteRange{Start: 0, End: 99},
		},
		{
			name:   "open ended",
			header: "bytes=500-",
			want:   &ByteRange{Start: 500, End: 999},
		},
		{
			name:   "suffix",
			header: "bytes=-100",
			want:   &ByteRange{Start: 900, End: 999},
		},
		{
			name:   "suffix longer than resource clamps to start",
			header: "bytes=-5000",
			want:   &ByteRange{Start: 0, End: 999},
		},
		{
			name:   "end clamped to resource size",
			header: "bytes=900-4000",
			want:   &ByteRange{Start: 900, End: 999},
		},
		{
			name:    "window past the end is unsatisfiable",
			header:  "bytes=2000-3000",
			wantErr: ErrUnsatisfiable,
		},
		{
			name:    "open ended past the end is unsatisfiable",
			header:  "bytes=1000-",
			wantErr: ErrUnsatisfiable,
		},
		{
			name:   "other units are ignored",
			header: "items=0-10",
			want:   nil,
		},
		{
			name:   "garbage is ignored",
			header: "bytes=abc-def",
			want:   nil,
		},
		{
			name:   "bare dash is ignored",
			header: "bytes=-",
			want:   nil,
		},
		{
			name:   "multi-range is not supported",
			header: "bytes=0-1,500-999",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.header, size)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteRangeHelpers(t *testing.T) {
	r := ByteRange{Start: 900, End: 999}

	assert.Equal(t, int64(100), r.Length())
	assert.Equal(t, "bytes 900-999/1000", r.ContentRange(1000))
	assert.False(t, r.IsFull(1000))

	full := ByteRange{Start: 0, End: 999}
	assert.True(t, full.IsFull(1000))
}
