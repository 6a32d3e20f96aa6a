// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MaxFrameSize bounds a single message body. Larger frames are treated as
// a framing error rather than allocated.
const MaxFrameSize = 64 << 20

// MaxHeaderLine bounds one header line, terminator included. The reader
// buffer is this size, so a longer line is reported instead of buffered.
const MaxHeaderLine = 4096

// maxHeaderLines bounds the header block of one frame.
const maxHeaderLines = 32

const headerContentLength = "Content-Length"

// Codec reads and writes Content-Length framed messages.
//
// Description:
//
//	Each frame is an ASCII header block terminated by an empty line,
//	followed by exactly Content-Length bytes of JSON. Headers other than
//	Content-Length (e.g. Content-Type) are accepted and ignored.
//
// Thread Safety:
//
//	ReadFrame must be called from a single goroutine. WriteFrame is safe
//	for concurrent use; each frame is emitted with one Write call.
type Codec struct {
	reader *bufio.Reader
	writer io.Writer
	wmu    sync.Mutex
}

// NewCodec creates a codec over the given stream halves. Either may be nil
// when only one direction is used.
func NewCodec(r io.Reader, w io.Writer) *Codec {
	c := &Codec{writer: w}
	if r != nil {
		c.reader = bufio.NewReaderSize(r, MaxHeaderLine)
	}
	return c
}

// ReadFrame reads one framed message body.
//
// Outputs:
//
//	[]byte - The JSON body.
//	error - io.EOF on a clean end of stream before any header byte,
//	        *FramingError for malformed headers or a short body.
func (c *Codec) ReadFrame() ([]byte, error) {
	length := -1
	sawHeader := false

	for lines := 0; ; lines++ {
		if lines == maxHeaderLines {
			return nil, &FramingError{Detail: fmt.Sprintf("header block exceeds %d lines", maxHeaderLines)}
		}
		raw, err := c.reader.ReadSlice('\n')
		line := string(raw)
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, &FramingError{Detail: fmt.Sprintf("header line exceeds %d bytes", MaxHeaderLine)}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && !sawHeader && line == "" {
				return nil, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return nil, &FramingError{Detail: "unexpected end of header block", Err: io.ErrUnexpectedEOF}
			}
			return nil, err
		}
		sawHeader = true

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &FramingError{Detail: fmt.Sprintf("malformed header line %q", line)}
		}
		if strings.EqualFold(strings.TrimSpace(name), headerContentLength) {
			n, err := parseLengthValue(value)
			if err != nil {
				return nil, err
			}
			length = n
		}
	}

	if length < 0 {
		return nil, &FramingError{Detail: "missing Content-Length header"}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{
				Detail: fmt.Sprintf("body shorter than Content-Length %d", length),
				Err:    io.ErrUnexpectedEOF,
			}
		}
		return nil, err
	}
	return body, nil
}

// WriteFrame writes the header and body as a single frame and flushes the
// writer if it supports flushing.
func (c *Codec) WriteFrame(body []byte) error {
	if len(body) > MaxFrameSize {
		return &FramingError{Detail: fmt.Sprintf("outgoing body of %d bytes exceeds limit", len(body))}
	}

	header := fmt.Sprintf("%s: %d\r\n\r\n", headerContentLength, len(body))
	frame := make([]byte, 0, len(header)+len(body))
	frame = append(frame, header...)
	frame = append(frame, body...)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.writer.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if f, ok := c.writer.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush frame: %w", err)
		}
	}
	return nil
}

// WriteMessage marshals v and writes it as one frame.
func (c *Codec) WriteMessage(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.WriteFrame(body)
}

// ParseContentLength extracts the Content-Length value from a header block.
//
// Description:
//
//	The block is a sequence of "Name: value" lines separated by CRLF (a
//	bare LF is tolerated). Header names match case-insensitively.
//
// Inputs:
//
//	headers - The raw header block, with or without the terminating blank line.
//
// Outputs:
//
//	int - The declared body length.
//	error - *FramingError if the header is missing, non-numeric or out of range.
//
// Example:
//
//	n, err := ParseContentLength("Content-Length: 123\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n")
//	// n == 123
func ParseContentLength(headers string) (int, error) {
	for _, line := range strings.Split(headers, "\n") {
		line = strings.TrimRight(line, "\r")
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), headerContentLength) {
			return parseLengthValue(value)
		}
	}
	return 0, &FramingError{Detail: "missing Content-Length header"}
}

func parseLengthValue(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &FramingError{Detail: fmt.Sprintf("non-numeric Content-Length %q", strings.TrimSpace(value)), Err: err}
	}
	if n < 0 {
		return 0, &FramingError{Detail: fmt.Sprintf("negative Content-Length %d", n)}
	}
	if n > MaxFrameSize {
		return 0, &FramingError{Detail: fmt.Sprintf("Content-Length %d exceeds limit %d", n, MaxFrameSize)}
	}
	return n, nil
}
