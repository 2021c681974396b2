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

// Package predict implements the PNG and TIFF predictors used by the
// FlateDecode and LZWDecode stream filters.
package predict

import (
	"errors"
	"fmt"
	"io"
)

// Params holds the values of the /DecodeParms entries which control a
// predictor.
type Params struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
}

// Validate checks that the parameters are self-consistent and fills in
// the PDF defaults for zero fields.
func (p *Params) Validate() error {
	if p.Predictor == 0 {
		p.Predictor = 1
	}
	if p.Colors == 0 {
		p.Colors = 1
	}
	if p.BitsPerComponent == 0 {
		p.BitsPerComponent = 8
	}
	if p.Columns == 0 {
		p.Columns = 1
	}
	switch p.Predictor {
	case 1, 2, 10, 11, 12, 13, 14, 15:
	default:
		return fmt.Errorf("predict: unsupported predictor %d", p.Predictor)
	}
	switch p.BitsPerComponent {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("predict: invalid BitsPerComponent %d", p.BitsPerComponent)
	}
	if p.Colors < 1 {
		return errors.New("predict: invalid Colors")
	}
	if p.Columns < 1 {
		return errors.New("predict: invalid Columns")
	}
	return nil
}

func (p Params) bytesPerPixel() int {
	bits := p.Colors * p.BitsPerComponent
	return (bits + 7) / 8
}

func (p Params) rowBytes() int {
	bits := p.Colors * p.BitsPerComponent * p.Columns
	return (bits + 7) / 8
}

// NewReader wraps r to undo the predictor described by p.  When
// p.Predictor is 1 (no predictor), r is returned unchanged.
func NewReader(r io.Reader, p Params) (io.Reader, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Predictor {
	case 1:
		return r, nil
	case 2:
		return &tiffReader{r: r, p: p, row: make([]byte, p.rowBytes())}, nil
	default:
		n := p.rowBytes()
		return &pngReader{
			r:    r,
			bpp:  p.bytesPerPixel(),
			n:    n,
			prev: make([]byte, n),
			cur:  make([]byte, n),
		}, nil
	}
}

// NewWriter wraps w to apply the predictor described by p.  When
// p.Predictor is 1 (no predictor), w is returned unchanged.
func NewWriter(w io.WriteCloser, p Params) (io.WriteCloser, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Predictor {
	case 1:
		return w, nil
	case 2:
		return &tiffWriter{w: w, p: p, row: make([]byte, p.rowBytes())}, nil
	default:
		n := p.rowBytes()
		return &pngWriter{
			w:    w,
			bpp:  p.bytesPerPixel(),
			n:    n,
			prev: make([]byte, n),
		}, nil
	}
}

// --- TIFF predictor 2 ---------------------------------------------------

type tiffReader struct {
	r    io.Reader
	p    Params
	row  []byte
	pos  int
	full bool
}

func (t *tiffReader) Read(p []byte) (int, error) {
	out := 0
	for out < len(p) {
		if !t.full {
			n, err := io.ReadFull(t.r, t.row)
			if n == 0 {
				return out, err
			}
			if err != nil && err != io.ErrUnexpectedEOF {
				return out, err
			}
			tiffUnpredictRow(t.row[:n], t.p)
			t.row = t.row[:n]
			t.pos = 0
			t.full = true
		}
		m := copy(p[out:], t.row[t.pos:])
		out += m
		t.pos += m
		if t.pos >= len(t.row) {
			t.full = false
			t.row = t.row[:cap(t.row)]
		}
	}
	return out, nil
}

func tiffUnpredictRow(row []byte, p Params) {
	if p.BitsPerComponent != 8 {
		// Only 8-bit components are predicted; rows with 1, 2, 4 or 16
		// bits per component are passed through unchanged rather than
		// rejecting the stream.
		return
	}
	colors := p.Colors
	for i := colors; i < len(row); i++ {
		row[i] += row[i-colors]
	}
}

func tiffPredictRow(row []byte, p Params) {
	if p.BitsPerComponent != 8 {
		return
	}
	colors := p.Colors
	for i := len(row) - 1; i >= colors; i-- {
		row[i] -= row[i-colors]
	}
}

type tiffWriter struct {
	w   io.WriteCloser
	p   Params
	row []byte
	pos int
}

func (t *tiffWriter) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		m := copy(t.row[t.pos:], p)
		t.pos += m
		p = p[m:]
		n += m
		if t.pos == len(t.row) {
			buf := append([]byte(nil), t.row...)
			tiffPredictRow(buf, t.p)
			if _, err := t.w.Write(buf); err != nil {
				return n, err
			}
			t.pos = 0
		}
	}
	return n, nil
}

func (t *tiffWriter) Close() error {
	return t.w.Close()
}

// --- PNG predictors (None/Sub/Up/Average/Paeth) -------------------------

type pngReader struct {
	r    io.Reader
	bpp  int
	n    int
	prev []byte
	cur  []byte
	tag  [1]byte
	pos  int
	full bool
}

func (pr *pngReader) Read(p []byte) (int, error) {
	out := 0
	for out < len(p) {
		if !pr.full {
			if _, err := io.ReadFull(pr.r, pr.tag[:]); err != nil {
				return out, err
			}
			if _, err := io.ReadFull(pr.r, pr.cur); err != nil {
				return out, io.ErrUnexpectedEOF
			}
			if err := pngUnfilterRow(pr.tag[0], pr.cur, pr.prev, pr.bpp); err != nil {
				return out, err
			}
			pr.prev, pr.cur = append([]byte(nil), pr.cur...), pr.prev
			pr.pos = 0
			pr.full = true
		}
		m := copy(p[out:], pr.prev[pr.pos:])
		out += m
		pr.pos += m
		if pr.pos >= len(pr.prev) {
			pr.full = false
		}
	}
	return out, nil
}

func pngUnfilterRow(tag byte, cur, prev []byte, bpp int) error {
	switch tag {
	case 0: // None
	case 1: // Sub
		for i := range cur {
			var left byte
			if i >= bpp {
				left = cur[i-bpp]
			}
			cur[i] += left
		}
	case 2: // Up
		for i := range cur {
			cur[i] += prev[i]
		}
	case 3: // Average
		for i := range cur {
			var left, up int
			if i >= bpp {
				left = int(cur[i-bpp])
			}
			up = int(prev[i])
			cur[i] += byte((left + up) / 2)
		}
	case 4: // Paeth
		for i := range cur {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			cur[i] += paeth(left, prev[i], upLeft)
		}
	default:
		return fmt.Errorf("predict: unknown PNG filter type %d", tag)
	}
	return nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

type pngWriter struct {
	w    io.WriteCloser
	bpp  int
	n    int
	prev []byte
	cur  []byte
	pos  int
}

func (pw *pngWriter) Write(p []byte) (int, error) {
	if pw.cur == nil {
		pw.cur = make([]byte, pw.n)
	}
	n := 0
	for len(p) > 0 {
		m := copy(pw.cur[pw.pos:], p)
		pw.pos += m
		p = p[m:]
		n += m
		if pw.pos == pw.n {
			out := make([]byte, pw.n)
			for i := range out {
				var up byte
				up = pw.prev[i]
				out[i] = pw.cur[i] - up
			}
			if _, err := pw.w.Write([]byte{2}); err != nil { // always encode with "Up"
				return n, err
			}
			if _, err := pw.w.Write(out); err != nil {
				return n, err
			}
			pw.prev, pw.cur = pw.cur, pw.prev
			pw.pos = 0
		}
	}
	return n, nil
}

func (pw *pngWriter) Close() error {
	return pw.w.Close()
}
