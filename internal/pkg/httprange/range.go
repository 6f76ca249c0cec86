// Package httprange parses single-range HTTP Range headers for resumable
// downloads. Multi-range requests ("bytes=0-1,5-9") are not supported.
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable reports a syntactically valid range that falls entirely
// outside the resource. The response must carry "Content-Range: bytes */size".
var ErrUnsatisfiable = errors.New("httprange: range not satisfiable")

// ByteRange is an inclusive byte window within a resource of known size.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range header value for a 206 response.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// IsFull reports whether the range covers the whole resource.
func (r ByteRange) IsFull(size int64) bool {
	return r.Start == 0 && r.End == size-1
}

// Parse interprets a Range header against a resource of the given size.
//
//	bytes=A-B  →  [A, B]
//	bytes=A-   →  [A, size-1]
//	bytes=-N   →  [size-N, size-1]
//
// Start is clamped to 0 and end to size-1. A nil range with nil error means
// the header is absent or malformed and the full resource should be served;
// malformed headers are ignored per RFC 9110. ErrUnsatisfiable is returned
// when the clamped window is empty.
func Parse(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, nil
	}

	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, nil
	}

	var start, end int64
	switch {
	case first == "" && last == "":
		return nil, nil

	case first == "":
		// Suffix form: the last N bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return nil, nil
		}
		start = size - n
		end = size - 1

	default:
		var err error
		start, err = strconv.ParseInt(first, 10, 64)
		if err != nil {
			return nil, nil
		}
		if last == "" {
			end = size - 1
		} else {
			end, err = strconv.ParseInt(last, 10, 64)
			if err != nil {
				return nil, nil
			}
		}
	}

	if start < 0 {
		start = 0
	}
	if end > size-1 {
		end = size - 1
	}

	if start > end {
		return nil, ErrUnsatisfiable
	}

	return &ByteRange{Start: start, End: end}, nil
}
