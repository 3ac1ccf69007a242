package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushAll(chunks ...[]byte) ([]string, *LineDecoder) {
	d := NewLineDecoder()
	var lines []string
	for _, c := range chunks {
		lines = append(lines, d.Push(c)...)
	}
	return lines, d
}

func TestLineDecoder_SingleChunk(t *testing.T) {
	lines, d := pushAll([]byte("data: a\ndata: b\n\n"))
	assert.Equal(t, []string{"data: a", "data: b", ""}, lines)
	assert.Equal(t, "", d.Residual())
}

func TestLineDecoder_LineSplitAcrossChunks(t *testing.T) {
	lines, d := pushAll([]byte("data: hel"), []byte("lo"), []byte("\ndata: x"))
	assert.Equal(t, []string{"data: hello"}, lines)
	assert.Equal(t, "data: x", d.Residual())
}

func TestLineDecoder_SplitMultiByteCharacter(t *testing.T) {
	// "é" is 0xC3 0xA9, "€" is 0xE2 0x82 0xAC.
	full := []byte("café €\n")
	for i := 1; i < len(full); i++ {
		lines, _ := pushAll(full[:i], full[i:])
		require.Equal(t, []string{"café €"}, lines, "split at %d", i)
	}

	// One byte at a time.
	var chunks [][]byte
	for i := range full {
		chunks = append(chunks, full[i:i+1])
	}
	lines, _ := pushAll(chunks...)
	assert.Equal(t, []string{"café €"}, lines)
}

func TestLineDecoder_InvalidUTF8BecomesReplacement(t *testing.T) {
	lines, _ := pushAll([]byte{'a', 0xff, 'b', '\n'})
	assert.Equal(t, []string{"a�b"}, lines)
}

func TestLineDecoder_CloseDiscardsUnterminatedLine(t *testing.T) {
	lines, d := pushAll([]byte("data: done\ndata: {\"type\":\"text_delta\""))
	assert.Equal(t, []string{"data: done"}, lines)
	assert.Greater(t, d.Close(), 0)
	assert.Equal(t, "", d.Residual())
	assert.Nil(t, d.Push(nil))
}

func TestLineDecoder_CRLFIsLeftForParser(t *testing.T) {
	lines, _ := pushAll([]byte("data: [DONE]\r\n"))
	require.Len(t, lines, 1)
	_, ok, err := ParseLine(lines[0])
	assert.False(t, ok)
	assert.NoError(t, err)
}

const sampleStream = "data: {\"type\":\"reasoning\",\"text\":\"Analyzing…\"}\n\n" +
	"data: {\"type\":\"tool_start\",\"tool_name\":\"Data Query\",\"input\":\"pressure\"}\n\n" +
	"data: {not json\n\n" +
	"data: {\"type\":\"tool_end\",\"tool_name\":\"Data Query\",\"output\":\"Retrieved 42 chars\"}\n\n" +
	"data: {\"type\":\"text_delta\",\"text\":\"Hél\"}\n\n" +
	"data: {\"type\":\"text_delta\",\"text\":\"lo ✓\"}\n\n" +
	"data: [DONE]\n\n"

func collectEvents(t *testing.T, chunks ...[]byte) []Event {
	t.Helper()
	lines, d := pushAll(chunks...)
	d.Close()
	var events []Event
	for _, line := range lines {
		ev, ok, err := ParseLine(line)
		require.NoError(t, err)
		if ok {
			events = append(events, ev)
		}
	}
	return events
}

// Any two-way split of the stream, including mid-newline and mid-character,
// yields the same events as the whole stream in one chunk.
func TestLineDecoder_ChunkingInvariance(t *testing.T) {
	whole := []byte(sampleStream)
	want := collectEvents(t, whole)
	require.Len(t, want, 5)

	for i := 1; i < len(whole); i++ {
		got := collectEvents(t, whole[:i], whole[i:])
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("split at %d changed events (-want +got):\n%s", i, diff)
		}
	}

	for _, size := range []int{1, 2, 3, 7, 64} {
		var chunks [][]byte
		for i := 0; i < len(whole); i += size {
			end := i + size
			if end > len(whole) {
				end = len(whole)
			}
			chunks = append(chunks, whole[i:end])
		}
		if diff := cmp.Diff(want, collectEvents(t, chunks...)); diff != "" {
			t.Fatalf("chunk size %d changed events (-want +got):\n%s", size, diff)
		}
	}
}

func TestLines_ReadsUntilEOF(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader("data: a\ndata: b\ntrailing"))

	var got []string
	err := Lines(context.Background(), r, 3, func(line string) error {
		got = append(got, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"data: a", "data: b"}, got)
}

func TestLines_StopsOnYieldError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Lines(context.Background(), strings.NewReader("a\nb\nc\n"), 0, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestLines_PropagatesReadError(t *testing.T) {
	boom := errors.New("connection reset")
	err := Lines(context.Background(), iotest.ErrReader(boom), 16, func(string) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestLines_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pr, pw := io.Pipe()
	defer pw.Close()

	err := Lines(ctx, pr, 16, func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
