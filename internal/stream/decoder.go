// Package stream turns the agent service's incrementally delivered response
// body into protocol lines and typed events. Both the decoder and the parser
// are plain state objects with no network dependency.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultChunkSize is the read size used by Lines when none is given.
const DefaultChunkSize = 4096

// LineDecoder reassembles newline-delimited UTF-8 lines from arbitrarily
// split byte chunks. A multi-byte character split across chunks is decoded
// once its remaining bytes arrive; a line split across chunks is emitted once
// its terminating newline arrives. One decoder serves one response stream.
type LineDecoder struct {
	dec     transform.Transformer
	pending []byte          // undecoded tail: an incomplete UTF-8 sequence
	tail    strings.Builder // decoded text after the last newline
}

// NewLineDecoder returns a decoder with empty residual state.
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{dec: unicode.UTF8.NewDecoder()}
}

// Push feeds one chunk and returns every line it completes, in order,
// without their trailing newline. Invalid UTF-8 decodes to U+FFFD.
func (d *LineDecoder) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	src := make([]byte, 0, len(d.pending)+len(chunk))
	src = append(src, d.pending...)
	src = append(src, chunk...)
	d.pending = d.pending[:0]

	// Worst case every byte becomes a 3-byte replacement character.
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	var text []byte
	for len(src) > 0 {
		nDst, nSrc, err := d.dec.Transform(dst, src, false)
		text = append(text, dst[:nDst]...)
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) {
			continue
		}
		if err != nil {
			// ErrShortSrc: the remainder is an incomplete character.
			break
		}
	}
	d.pending = append(d.pending, src...)

	if len(text) == 0 {
		return nil
	}
	d.tail.Write(text)

	buffered := d.tail.String()
	parts := strings.Split(buffered, "\n")
	d.tail.Reset()
	d.tail.WriteString(parts[len(parts)-1])

	if len(parts) == 1 {
		return nil
	}
	return parts[:len(parts)-1]
}

// Residual reports the buffered, not yet terminated text.
func (d *LineDecoder) Residual() string {
	return d.tail.String()
}

// Close ends the stream. Any unterminated trailing line is discarded, not
// treated as a complete frame. Returns the number of bytes dropped.
func (d *LineDecoder) Close() int {
	dropped := d.tail.Len() + len(d.pending)
	d.tail.Reset()
	d.pending = nil
	d.dec.Reset()
	return dropped
}

// Lines reads r in chunks of chunkSize and calls yield for every complete
// line in arrival order. It returns nil at EOF, ctx.Err() once ctx is done,
// the read error otherwise, or the first error returned by yield.
//
// Reads are not interruptible by ctx on their own; callers cancel a blocked
// read by closing r (an HTTP body is closed when its request context ends).
func Lines(ctx context.Context, r io.Reader, chunkSize int, yield func(line string) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	dec := NewLineDecoder()
	defer dec.Close()

	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for _, line := range dec.Push(buf[:n]) {
				if err := yield(line); err != nil {
					return err
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return readErr
		}
	}
}
