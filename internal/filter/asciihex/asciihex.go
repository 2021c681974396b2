// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2024  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package asciihex implements the PDF /ASCIIHexDecode filter.
package asciihex

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrNoEOD is returned once all input bytes have been consumed without
// finding the ">" end-of-data marker.
var ErrNoEOD = errors.New("asciihex: missing end-of-data marker")

// Decode returns a reader which decodes ASCII hex digits read from r,
// stopping at the ">" end-of-data marker.  Whitespace between digits is
// ignored; a trailing unpaired digit is treated as if followed by "0".
// If the marker is never found, the reader's final Read returns
// [ErrNoEOD] together with whatever bytes could be decoded up to that
// point.
func Decode(r io.Reader) io.Reader {
	return &lazyDecoder{r: bufio.NewReader(r)}
}

// lazyDecoder defers the actual work to decodeAll on the first Read, then
// serves the result (and any error) from an in-memory buffer.  This keeps
// the control flow simple while still supporting Read being called with
// small buffers.
type lazyDecoder struct {
	r        io.Reader
	decoded  bytes.Reader
	err      error
	prepared bool
}

func (d *lazyDecoder) Read(p []byte) (int, error) {
	if !d.prepared {
		data, err := decodeAll(d.r)
		d.decoded.Reset(data)
		d.err = err
		d.prepared = true
	}
	n, err := d.decoded.Read(p)
	if err == io.EOF {
		if d.err != nil {
			return n, d.err
		}
		return n, io.EOF
	}
	return n, err
}

func decodeAll(r io.Reader) ([]byte, error) {
	var out []byte
	var haveNibble bool
	var hi byte

	buf := make([]byte, 4096)
	for {
		n, rerr := r.Read(buf)
		for i := 0; i < n; i++ {
			c := buf[i]
			if c == '>' {
				if haveNibble {
					out = append(out, hi<<4)
				}
				return out, nil
			}
			v, ok := hexVal(c)
			if !ok {
				if isHexSpace(c) {
					continue
				}
				return out, errors.New("asciihex: invalid character")
			}
			if !haveNibble {
				hi = v
				haveNibble = true
			} else {
				out = append(out, hi<<4|v)
				haveNibble = false
			}
		}
		if rerr == io.EOF {
			if haveNibble {
				out = append(out, hi<<4)
			}
			return out, ErrNoEOD
		} else if rerr != nil {
			return out, rerr
		}
	}
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isHexSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

const hexDigits = "0123456789abcdef"

// Encode returns a writer which encodes written bytes as ASCII hex
// digits, breaking lines so that no output line exceeds width characters,
// and writes the ">" end-of-data marker on Close.
func Encode(w io.WriteCloser, width int) io.WriteCloser {
	if width < 2 {
		width = 2
	}
	return &encoder{w: w, width: width}
}

type encoder struct {
	w     io.WriteCloser
	width int
	col   int
}

func (e *encoder) Write(p []byte) (int, error) {
	for _, b := range p {
		if e.col+2 > e.width {
			if _, err := io.WriteString(e.w, "\n"); err != nil {
				return 0, err
			}
			e.col = 0
		}
		buf := [2]byte{hexDigits[b>>4], hexDigits[b&0xf]}
		if _, err := e.w.Write(buf[:]); err != nil {
			return 0, err
		}
		e.col += 2
	}
	return len(p), nil
}

func (e *encoder) Close() error {
	if e.col+1 > e.width {
		if _, err := io.WriteString(e.w, "\n"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(e.w, ">"); err != nil {
		return err
	}
	return e.w.Close()
}
