// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxFrameSize bounds a frame that is being reassembled across lines. A
// pending frame larger than this is dropped.
const MaxFrameSize = 64 * 1024

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	readSize     = 4096
)

// ChunkFunc receives each decoded delta and the text accumulated so far.
type ChunkFunc func(delta, full string)

// frame is one decoded payload. Providers send either the streaming delta
// shape or the non-streaming message shape.
type frame struct {
	Choices []struct {
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (f *frame) content() string {
	if len(f.Choices) == 0 {
		return ""
	}
	c := f.Choices[0]
	if c.Delta != nil && c.Delta.Content != "" {
		return c.Delta.Content
	}
	if c.Message != nil {
		return c.Message.Content
	}
	return ""
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns a chat-completions stream into text. It accepts SSE frames
// ("data: {...}") and bare newline-delimited JSON. Bytes may arrive split at
// any point; an incomplete trailing line is held until more bytes arrive.
//
// A data frame that fails to parse is kept pending and retried joined with
// the following lines, so a frame broken across lines is not lost. Malformed
// frames are never fatal.
type Decoder struct {
	onChunk ChunkFunc
	buf     []byte
	pending string
	text    strings.Builder
}

// NewDecoder returns a decoder that reports deltas to onChunk (may be nil).
func NewDecoder(onChunk ChunkFunc) *Decoder {
	return &Decoder{onChunk: onChunk}
}

// Write feeds raw stream bytes. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		d.line(line)
	}
	return len(p), nil
}

// Finish processes the residual fragment and any pending frame, then
// returns the accumulated text.
func (d *Decoder) Finish() string {
	if len(d.buf) > 0 {
		rest := string(d.buf)
		d.buf = nil
		d.line(rest)
	}
	d.pending = ""
	return d.text.String()
}

// Text returns the text accumulated so far.
func (d *Decoder) Text() string {
	return d.text.String()
}

func (d *Decoder) line(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	isData := strings.HasPrefix(line, dataPrefix)
	payload := line
	if isData {
		payload = strings.TrimLeft(line[len(dataPrefix):], " \t")
	}

	if payload == doneSentinel {
		d.pending = ""
		return
	}

	// A line that stands on its own supersedes any pending fragment.
	if d.parse(payload) {
		d.pending = ""
		return
	}

	if d.pending != "" {
		joined := d.pending + "\n" + payload
		if d.parse(joined) {
			d.pending = ""
			return
		}
		if len(joined) > MaxFrameSize {
			d.pending = ""
			return
		}
		d.pending = joined
		return
	}

	if isData && len(payload) <= MaxFrameSize {
		d.pending = payload
	}
}

// parse decodes one payload and emits its content. It reports whether the
// payload was valid JSON.
func (d *Decoder) parse(payload string) bool {
	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return false
	}
	if content := f.content(); content != "" {
		d.text.WriteString(content)
		if d.onChunk != nil {
			d.onChunk(content, d.text.String())
		}
	}
	return true
}

// DecodeStream reads r to the end through a Decoder. On a read error or
// context cancellation it returns the text decoded so far with the error.
func DecodeStream(ctx context.Context, r io.Reader, onChunk ChunkFunc) (string, error) {
	d := NewDecoder(onChunk)
	buf := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			return d.Text(), err
		}
		n, err := r.Read(buf)
		if n > 0 {
			d.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return d.Finish(), nil
			}
			return d.Text(), err
		}
	}
}
