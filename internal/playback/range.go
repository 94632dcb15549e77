package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive byte span of a media file.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats r for the Content-Range response header.
func (r ByteRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseByteRange parses a Range header against a file of size bytes. An
// empty header yields nil. Only the first range of a multi-range request is
// honoured; players scrubbing a clip never ask for more than one.
func ParseByteRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	set, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(set, ","); multi {
		set = strings.TrimSpace(first)
	}

	startStr, endStr, ok := strings.Cut(set, "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	var r ByteRange
	switch {
	case startStr == "":
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		r.Start = max(size-n, 0)
		r.End = size - 1
	default:
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		r.Start = start
		r.End = size - 1
		if endStr != "" {
			end, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil {
				return nil, ErrInvalidRange
			}
			r.End = min(end, size-1)
			if end < start {
				return nil, ErrUnsatisfiable
			}
		}
	}

	if r.Start >= size || r.Start > r.End {
		return nil, ErrUnsatisfiable
	}
	return &r, nil
}
