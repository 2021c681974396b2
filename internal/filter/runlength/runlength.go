// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2025  Jochen Voss <voss@seehuhn.de>
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

// Package runlength implements the PDF /RunLengthDecode filter.
package runlength

import (
	"bufio"
	"io"
)

// Decode returns a reader which decodes run-length encoded data read from
// r, stopping once the EOD length byte 128 is read (or r is exhausted).
func Decode(r io.Reader) io.Reader {
	return &decoder{r: bufio.NewReader(r)}
}

type decoder struct {
	r    *bufio.Reader
	pend []byte
	done bool
}

func (d *decoder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(d.pend) == 0 {
		if d.done {
			return 0, io.EOF
		}

		length, err := d.r.ReadByte()
		if err != nil {
			d.done = true
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}

		switch {
		case length == 128:
			d.done = true
			return 0, io.EOF
		case length < 128:
			n := int(length) + 1
			buf := make([]byte, n)
			if _, err := io.ReadFull(d.r, buf); err != nil {
				d.done = true
				return 0, io.ErrUnexpectedEOF
			}
			d.pend = buf
		default: // length > 128
			n := 257 - int(length)
			b, err := d.r.ReadByte()
			if err != nil {
				d.done = true
				return 0, io.ErrUnexpectedEOF
			}
			buf := make([]byte, n)
			for i := range buf {
				buf[i] = b
			}
			d.pend = buf
		}
	}

	n := copy(p, d.pend)
	d.pend = d.pend[n:]
	return n, nil
}

// Encode returns a writer which encodes written bytes using run-length
// encoding, writing the EOD marker byte 128 on Close.
func Encode(w io.WriteCloser) io.WriteCloser {
	return &encoder{w: w}
}

const maxRun = 128

type encoder struct {
	w   io.WriteCloser
	buf []byte // pending bytes not yet encoded
}

func (e *encoder) Write(p []byte) (int, error) {
	e.buf = append(e.buf, p...)
	for {
		lit, rep, repByte := scanRun(e.buf)
		if lit == 0 && rep == 0 {
			break
		}
		if lit > 0 {
			if err := e.writeLiteral(e.buf[:lit]); err != nil {
				return 0, err
			}
			e.buf = e.buf[lit:]
		}
		if rep > 0 {
			if err := e.writeRun(repByte, rep); err != nil {
				return 0, err
			}
			e.buf = e.buf[rep:]
		}
	}
	return len(p), nil
}

// scanRun looks at the start of buf and returns either a literal run
// length (copy verbatim) or a replicated run length (same byte repeated),
// whichever applies at the very start of buf.  It only reports spans it
// is sure about: a literal span stops as soon as a run of 3 or more
// identical bytes begins, and nothing is reported if buf is too short to
// be sure more data isn't coming (so callers must flush remaining bytes
// explicitly on Close).
func scanRun(buf []byte) (lit, rep int, repByte byte) {
	if len(buf) == 0 {
		return 0, 0, 0
	}

	// check for a replicated run at the start
	i := 1
	for i < len(buf) && i < maxRun && buf[i] == buf[0] {
		i++
	}
	if i >= 3 {
		return 0, i, buf[0]
	}

	// otherwise accumulate a literal run, stopping before any run of >=3
	// identical bytes, and before exceeding maxRun bytes
	j := 0
	for j < len(buf) && j < maxRun {
		k := j + 1
		for k < len(buf) && k < j+3 && buf[k] == buf[j] {
			k++
		}
		if k-j >= 3 {
			break
		}
		j++
	}
	// leave at least 2 bytes unreported at the tail, unless buf is at
	// its maximum possible literal length, so a run starting there isn't
	// split across two Write calls
	if j < len(buf) && j >= 2 {
		return j - 2, 0, 0
	}
	return 0, 0, 0
}

func (e *encoder) writeLiteral(data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > maxRun {
			n = maxRun
		}
		if _, err := e.w.Write([]byte{byte(n - 1)}); err != nil {
			return err
		}
		if _, err := e.w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (e *encoder) writeRun(b byte, n int) error {
	for n > 0 {
		m := n
		if m > maxRun {
			m = maxRun
		}
		if _, err := e.w.Write([]byte{byte(257 - m), b}); err != nil {
			return err
		}
		n -= m
	}
	return nil
}

func (e *encoder) Close() error {
	if len(e.buf) > 0 {
		lit, rep, repByte := scanRunFinal(e.buf)
		if rep > 0 {
			if err := e.writeRun(repByte, rep); err != nil {
				return err
			}
		} else if lit > 0 {
			if err := e.writeLiteral(e.buf[:lit]); err != nil {
				return err
			}
		}
	}
	if _, err := e.w.Write([]byte{128}); err != nil {
		return err
	}
	return e.w.Close()
}

// scanRunFinal is like scanRun but assumes buf is everything that will
// ever be written, so it no longer needs to hold back a 2-byte tail.
func scanRunFinal(buf []byte) (lit, rep int, repByte byte) {
	if len(buf) == 0 {
		return 0, 0, 0
	}
	i := 1
	for i < len(buf) && i < maxRun && buf[i] == buf[0] {
		i++
	}
	if i >= 3 {
		return 0, i, buf[0]
	}
	return len(buf), 0, 0
}
