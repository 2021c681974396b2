// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2021  Jochen Voss <voss@seehuhn.de>
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

package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// xRefEntry describes the location of one indirect object, as recorded in
// a cross-reference table or cross-reference stream.
type xRefEntry struct {
	// InStream is non-zero if the object is stored inside an object
	// stream; in this case Pos gives the object's index within that
	// stream and Generation is always 0.
	InStream Reference

	Generation uint16

	// Pos is the byte offset of the object within the file, for objects
	// not stored in an object stream.
	Pos int64
}

// IsFree reports whether the entry refers to an object that is not in
// use.  A freshly zeroed entry (no byte offset, not inside an object
// stream) is always free: no writer ever places a real object at offset
// 0, since that is where the "%PDF-..." header lives.
func (e *xRefEntry) IsFree() bool {
	return e.InStream == 0 && e.Pos <= 0
}

// lastOccurence searches backwards from the end of the file for the last
// occurrence of pat, growing the search window exponentially until a
// match is found or the whole file has been scanned.  This is used to
// locate the "startxref" keyword, which per the PDF spec must be found
// by scanning from the end of the file.
func (r *Reader) lastOccurence(pat string) (int64, error) {
	patBytes := []byte(pat)
	for windowSize := int64(64); ; windowSize *= 2 {
		start := r.size - windowSize
		if start < 0 {
			start = 0
		}
		buf := make([]byte, r.size-start)
		_, err := r.r.ReadAt(buf, start)
		if err != nil && err != io.EOF {
			return 0, err
		}

		idx := bytes.LastIndex(buf, patBytes)
		if idx >= 0 {
			return start + int64(idx), nil
		}

		if start == 0 {
			return 0, &MalformedFileError{Err: fmt.Errorf("%q not found", pat)}
		}
	}
}

// findXRef locates the "startxref" keyword near the end of the file and
// returns the byte offset it points to.
func (r *Reader) findXRef() (int64, error) {
	pos, err := r.lastOccurence("startxref")
	if err != nil {
		return 0, err
	}
	pos += int64(len("startxref"))

	remaining := r.size - pos
	if remaining < 0 {
		remaining = 0
	}
	buf := make([]byte, remaining)
	if _, err := r.r.ReadAt(buf, pos); err != nil && err != io.EOF {
		return 0, err
	}

	i := 0
	for i < len(buf) && isWS(buf[i]) {
		i++
	}
	j := i
	for j < len(buf) && buf[j] >= '0' && buf[j] <= '9' {
		j++
	}
	if j == i {
		return 0, &MalformedFileError{Err: errors.New("malformed startxref")}
	}
	val, err := strconv.ParseInt(string(buf[i:j]), 10, 64)
	if err != nil {
		return 0, &MalformedFileError{Err: err}
	}
	return val, nil
}

// readXRefChain walks the chain of cross-reference sections starting at
// pos (classic tables as well as cross-reference streams, and hybrid
// files using /XRefStm), following /Prev pointers until the chain is
// exhausted.  Entries for object numbers already seen are not
// overwritten, since the most recent section takes precedence.
func (r *Reader) readXRefChain(pos int64) (Dict, error) {
	var trailer Dict
	seen := map[int64]bool{}

	for pos != 0 {
		if seen[pos] {
			return trailer, &MalformedFileError{Err: errors.New("xref loop detected")}
		}
		seen[pos] = true

		sectionTrailer, prev, hybrid, err := r.readXRefSection(pos)
		if err != nil {
			return trailer, err
		}

		if trailer == nil {
			trailer = Dict{}
		}
		for key, val := range sectionTrailer {
			if _, ok := trailer[key]; !ok {
				trailer[key] = val
			}
		}

		if hybrid != 0 {
			if _, _, _, err := r.readXRefSection(hybrid); err != nil {
				return trailer, err
			}
		}

		pos = prev
	}

	if trailer == nil {
		return nil, &MalformedFileError{Err: errors.New("missing trailer")}
	}
	return trailer, nil
}

// readXRefSection reads a single cross-reference section (table or
// stream) located at pos, records its entries in r.xref (without
// overwriting object numbers that already have an entry), and returns
// the section's trailer dictionary together with the byte offsets of
// its predecessor (/Prev) and, for hybrid files, the companion
// cross-reference stream (/XRefStm).
func (r *Reader) readXRefSection(pos int64) (trailer Dict, prev int64, hybrid int64, err error) {
	if pos < 0 || pos >= r.size {
		return nil, 0, 0, &MalformedFileError{Err: fmt.Errorf("xref offset %d out of range", pos)}
	}

	head := make([]byte, 32)
	n, rerr := r.r.ReadAt(head, pos)
	if rerr != nil && rerr != io.EOF {
		return nil, 0, 0, rerr
	}
	head = head[:n]

	if bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n\f\x00"), []byte("xref")) {
		return r.readClassicXRefSection(pos)
	}
	return r.readXRefStreamSection(pos)
}

// readClassicXRefSection reads a classic "xref ... trailer ..." section.
func (r *Reader) readClassicXRefSection(pos int64) (Dict, int64, int64, error) {
	sr := io.NewSectionReader(r.r, pos, r.size-pos)
	s := newScanner(sr, nil, nil)

	if !s.hasKeywordSkippingWS("xref") {
		return nil, 0, 0, s.malformed("expected xref keyword")
	}

	for {
		if err := s.SkipWhiteSpace(); err != nil {
			return nil, 0, 0, err
		}
		if s.hasKeyword("trailer") {
			break
		}

		start, err := s.ReadInteger()
		if err != nil {
			return nil, 0, 0, err
		}
		if err := s.SkipWhiteSpace(); err != nil {
			return nil, 0, 0, err
		}
		count, err := s.ReadInteger()
		if err != nil {
			return nil, 0, 0, err
		}

		for i := int64(0); i < int64(count); i++ {
			if err := s.SkipWhiteSpace(); err != nil {
				return nil, 0, 0, err
			}
			entryOffset, err := s.ReadInteger()
			if err != nil {
				return nil, 0, 0, err
			}
			if err := s.SkipWhiteSpace(); err != nil {
				return nil, 0, 0, err
			}
			entryGen, err := s.ReadInteger()
			if err != nil {
				return nil, 0, 0, err
			}
			if err := s.SkipWhiteSpace(); err != nil {
				return nil, 0, 0, err
			}
			c, ok := s.next()
			if !ok || (c != 'n' && c != 'f') {
				return nil, 0, 0, s.malformed("invalid xref entry type")
			}

			num := uint32(int64(start) + i)
			if c == 'n' {
				if _, ok := r.xref[num]; !ok {
					r.xref[num] = &xRefEntry{
						Pos:        int64(entryOffset),
						Generation: uint16(entryGen),
					}
				}
			} else {
				if _, ok := r.xref[num]; !ok {
					r.xref[num] = &xRefEntry{}
				}
			}
		}
	}

	if err := s.SkipWhiteSpace(); err != nil {
		return nil, 0, 0, err
	}
	obj, err := s.ReadObject()
	if err != nil {
		return nil, 0, 0, err
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, 0, 0, s.malformed("trailer is not a dictionary")
	}

	var prev, hybrid int64
	if p, ok := trailer["Prev"].(Integer); ok {
		prev = int64(p)
	}
	if p, ok := trailer["XRefStm"].(Integer); ok {
		hybrid = int64(p)
	}
	return trailer, prev, hybrid, nil
}

// hasKeywordSkippingWS skips leading white space and then checks for the
// given keyword, consuming it if present.
func (s *scanner) hasKeywordSkippingWS(kw string) bool {
	if err := s.SkipWhiteSpace(); err != nil {
		return false
	}
	return s.hasKeyword(kw)
}

// readXRefStreamSection reads a cross-reference stream (PDF 1.5 and
// later): an ordinary indirect object of type /XRef whose body encodes
// the cross-reference table using the /W column widths.
func (r *Reader) readXRefStreamSection(pos int64) (Dict, int64, int64, error) {
	sr := io.NewSectionReader(r.r, pos, r.size-pos)
	s := newScanner(sr, func(obj Object) (Integer, error) {
		n, ok := obj.(Integer)
		if !ok {
			return 0, errors.New("indirect /Length not supported in xref streams")
		}
		return n, nil
	}, nil)

	if err := s.SkipWhiteSpace(); err != nil {
		return nil, 0, 0, err
	}
	if _, err := s.ReadInteger(); err != nil { // object number
		return nil, 0, 0, err
	}
	if err := s.SkipWhiteSpace(); err != nil {
		return nil, 0, 0, err
	}
	if _, err := s.ReadInteger(); err != nil { // generation
		return nil, 0, 0, err
	}
	if err := s.SkipWhiteSpace(); err != nil {
		return nil, 0, 0, err
	}
	if !s.hasKeyword("obj") {
		return nil, 0, 0, s.malformed("expected obj keyword")
	}

	obj, err := s.ReadObject()
	if err != nil {
		return nil, 0, 0, err
	}
	stm, ok := obj.(*Stream)
	if !ok {
		return nil, 0, 0, s.malformed("xref stream is not a stream object")
	}
	dict := stm.Dict

	wArr, ok := dict["W"].(Array)
	if !ok || len(wArr) < 3 {
		return nil, 0, 0, s.malformed("invalid /W in xref stream")
	}
	widths := make([]int, 3)
	for i := range widths {
		n, ok := wArr[i].(Integer)
		if !ok {
			return nil, 0, 0, s.malformed("invalid /W entry in xref stream")
		}
		widths[i] = int(n)
	}

	var index []int64
	if idxArr, ok := dict["Index"].(Array); ok {
		for _, v := range idxArr {
			n, ok := v.(Integer)
			if !ok {
				return nil, 0, 0, s.malformed("invalid /Index in xref stream")
			}
			index = append(index, int64(n))
		}
	} else {
		size, ok := dict["Size"].(Integer)
		if !ok {
			return nil, 0, 0, s.malformed("missing /Size in xref stream")
		}
		index = []int64{0, int64(size)}
	}

	data, err := ReadAll(nil, stm)
	if err != nil {
		return nil, 0, 0, err
	}

	recordSize := widths[0] + widths[1] + widths[2]
	if recordSize <= 0 {
		return nil, 0, 0, s.malformed("invalid /W in xref stream")
	}

	offset := 0
	for i := 0; i+1 < len(index); i += 2 {
		start := index[i]
		count := index[i+1]
		for j := int64(0); j < count; j++ {
			if offset+recordSize > len(data) {
				return nil, 0, 0, s.malformed("truncated xref stream")
			}
			rec := data[offset : offset+recordSize]
			offset += recordSize

			fieldType := int64(1)
			if widths[0] > 0 {
				fieldType = readXRefField(rec[:widths[0]])
			}
			f2 := readXRefField(rec[widths[0] : widths[0]+widths[1]])
			f3 := readXRefField(rec[widths[0]+widths[1] : recordSize])

			num := uint32(start + j)
			if _, ok := r.xref[num]; ok {
				continue
			}

			switch fieldType {
			case 0:
				r.xref[num] = &xRefEntry{}
			case 1:
				r.xref[num] = &xRefEntry{Pos: f2, Generation: uint16(f3)}
			case 2:
				r.xref[num] = &xRefEntry{InStream: NewReference(uint32(f2), 0), Pos: f3}
			default:
				return nil, 0, 0, s.malformed("invalid xref stream entry type %d", fieldType)
			}
		}
	}

	var prev, hybrid int64
	if p, ok := dict["Prev"].(Integer); ok {
		prev = int64(p)
	}
	return dict, prev, hybrid, nil
}

func readXRefField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
