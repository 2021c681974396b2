// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2022  Jochen Voss <voss@seehuhn.de>
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

// Package lzw implements the variant of the LZW compression algorithm
// used by the PDF /LZWDecode filter: MSB-first bit packing, a 9-bit
// initial code width growing to 12 bits, explicit clear (256) and
// end-of-data (257) codes, and an optional "early change" code width
// bump as controlled by the /EarlyChange decode parameter.
package lzw

import (
	"bufio"
	"errors"
	"io"
)

const (
	clearCode = 256
	eodCode   = 257
	firstCode = 258
	maxWidth  = 12
	maxCode   = 1<<maxWidth - 1
)

// NewWriter returns a writer that LZW-compresses data written to it,
// using the code-width transition points required by earlyChange.
func NewWriter(w io.Writer, earlyChange bool) (io.WriteCloser, error) {
	return &writer{
		w:           w,
		earlyChange: earlyChange,
		width:       9,
		next:        firstCode,
		dict:        make(map[string]int, 512),
	}, nil
}

type writer struct {
	w           io.Writer
	earlyChange bool
	width       uint
	next        int
	dict        map[string]int
	cur         string
	bitBuf      uint32
	bitCnt      uint
	started     bool
}

func (lw *writer) Write(p []byte) (int, error) {
	if !lw.started {
		if err := lw.emit(clearCode); err != nil {
			return 0, err
		}
		lw.started = true
	}
	for _, c := range p {
		next := lw.cur + string(c)
		if _, ok := lw.dict[next]; ok || len(next) == 1 {
			lw.cur = next
			continue
		}
		if lw.cur != "" {
			if err := lw.emit(lw.code(lw.cur)); err != nil {
				return 0, err
			}
		}
		if err := lw.addToDict(next); err != nil {
			return 0, err
		}
		lw.cur = string(c)
	}
	return len(p), nil
}

func (lw *writer) code(s string) int {
	if len(s) == 1 {
		return int(s[0])
	}
	return lw.dict[s]
}

func (lw *writer) addToDict(s string) error {
	lw.dict[s] = lw.next
	lw.next++
	bump := -1
	if lw.earlyChange {
		bump = 0
	}
	if lw.width < maxWidth && lw.next+bump >= 1<<lw.width {
		lw.width++
	}
	if lw.next > maxCode {
		// table is full: emit a clear code and start over
		if err := lw.emit(clearCode); err != nil {
			return err
		}
		lw.resetDict()
	}
	return nil
}

func (lw *writer) resetDict() {
	lw.dict = make(map[string]int, 512)
	lw.next = firstCode
	lw.width = 9
}

func (lw *writer) emit(code int) error {
	lw.bitBuf = lw.bitBuf<<lw.width | uint32(code)
	lw.bitCnt += lw.width
	for lw.bitCnt >= 8 {
		lw.bitCnt -= 8
		b := byte(lw.bitBuf >> lw.bitCnt)
		if _, err := lw.w.Write([]byte{b}); err != nil {
			return err
		}
	}
	return nil
}

func (lw *writer) Close() error {
	if !lw.started {
		if err := lw.emit(clearCode); err != nil {
			return err
		}
		lw.started = true
	}
	if lw.cur != "" {
		if err := lw.emit(lw.code(lw.cur)); err != nil {
			return err
		}
		lw.cur = ""
	}
	if err := lw.emit(eodCode); err != nil {
		return err
	}
	if lw.bitCnt > 0 {
		b := byte(lw.bitBuf << (8 - lw.bitCnt))
		if _, err := lw.w.Write([]byte{b}); err != nil {
			return err
		}
		lw.bitCnt = 0
	}
	if c, ok := lw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewReader returns a reader that decompresses LZW data read from r,
// using the code-width transition points required by earlyChange.
func NewReader(r io.Reader, earlyChange bool) io.ReadCloser {
	return &reader{
		r:           bufio.NewReader(r),
		earlyChange: earlyChange,
		width:       9,
		next:        firstCode,
		dict:        make([][]byte, firstCode, 1<<maxWidth),
	}
}

type reader struct {
	r           *bufio.Reader
	earlyChange bool
	width       uint
	next        int
	dict        [][]byte
	prev        []byte
	bitBuf      uint32
	bitCnt      uint
	pend        []byte
	done        bool
	err         error
}

func (lr *reader) readCode() (int, error) {
	for lr.bitCnt < lr.width {
		b, err := lr.r.ReadByte()
		if err != nil {
			return 0, err
		}
		lr.bitBuf = lr.bitBuf<<8 | uint32(b)
		lr.bitCnt += 8
	}
	lr.bitCnt -= lr.width
	code := int(lr.bitBuf>>lr.bitCnt) & ((1 << lr.width) - 1)
	return code, nil
}

func (lr *reader) resetDict() {
	lr.dict = lr.dict[:firstCode]
	lr.next = firstCode
	lr.width = 9
	lr.prev = nil
}

func (lr *reader) Read(p []byte) (int, error) {
	out := 0
	for out < len(p) {
		if len(lr.pend) > 0 {
			n := copy(p[out:], lr.pend)
			out += n
			lr.pend = lr.pend[n:]
			continue
		}
		if lr.done {
			if lr.err != nil {
				return out, lr.err
			}
			return out, io.EOF
		}

		code, err := lr.readCode()
		if err != nil {
			lr.done = true
			lr.err = io.ErrUnexpectedEOF
			return out, lr.err
		}

		switch {
		case code == clearCode:
			lr.resetDict()
			continue
		case code == eodCode:
			lr.done = true
			continue
		}

		var entry []byte
		if code < clearCode {
			entry = []byte{byte(code)}
		} else if code-firstCode < len(lr.dict)-firstCode && code >= firstCode && code < len(lr.dict) {
			entry = lr.dict[code]
		} else if code == len(lr.dict) && lr.prev != nil {
			entry = append(append([]byte(nil), lr.prev...), lr.prev[0])
		} else {
			lr.done = true
			lr.err = errors.New("lzw: invalid code")
			return out, lr.err
		}

		if lr.prev != nil && len(lr.dict) < 1<<maxWidth {
			newEntry := append(append([]byte(nil), lr.prev...), entry[0])
			lr.dict = append(lr.dict, newEntry)
			lr.next++
			bump := 0
			if lr.earlyChange {
				bump = 1
			}
			if lr.width < maxWidth && lr.next+bump >= 1<<lr.width {
				lr.width++
			}
		}
		lr.prev = entry

		lr.pend = entry
	}
	return out, nil
}

func (lr *reader) Close() error {
	return nil
}
