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
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/maps"
)

// Putter is the subset of [Writer] needed to store indirect objects.
type Putter interface {
	Put(ref Reference, obj Object) error
}

// WriterOptions controls the behaviour of [NewWriter] and [Create].
type WriterOptions struct {
	// Version is the PDF version to write.  The zero value defaults to
	// [V1_7].
	Version Version

	// ID, if it has at least two elements, is used as the file
	// identifier written to the trailer dictionary.  Otherwise a fresh
	// random identifier is generated.
	ID [][]byte

	// UserPassword and OwnerPassword, if either is non-empty, or if
	// UserPermissions is non-zero, cause the document to be encrypted
	// using the standard security handler.
	UserPassword  string
	OwnerPassword string

	// UserPermissions lists the operations permitted for a reader who
	// only knows the user password.
	UserPermissions Perm

	// HumanReadable selects pretty-printed, indented object output,
	// mainly useful for debugging.
	HumanReadable bool
}

// countingWriter wraps an io.Writer and keeps track of the number of
// bytes written so far, so that object offsets for the cross-reference
// table can be recorded as they are written.
type countingWriter struct {
	w   io.Writer
	pos int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.pos += int64(n)
	return n, err
}

// writerState holds the low-level output machinery of a [Writer]: the
// counting wrapper around the destination io.Writer, the same writer
// re-exposed as an io.WriteSeeker when seeking is available, and the
// encryption parameters (nil for an unencrypted document).
type writerState struct {
	cw     *countingWriter
	seeker io.WriteSeeker
	enc    *encryptInfo
}

// Writer writes a PDF document incrementally to an io.Writer.  Objects
// are allocated with [Writer.Alloc], written with [Writer.Put] or
// [Writer.OpenStream], and the document is finalised by [Writer.Close].
type Writer struct {
	MetaInfo

	w    *writerState
	xref map[uint32]*xRefEntry

	nextRef uint32

	closeDownstream bool
	closed          bool
}

// Create creates the named file and returns a [Writer] for it.  The
// file is closed automatically when the writer's Close method is
// called.
func Create(fname string, opt *WriterOptions) (*Writer, error) {
	f, err := os.Create(fname)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, opt)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closeDownstream = true
	return w, nil
}

// NewWriter creates a new Writer which writes a PDF document to w.
func NewWriter(w io.Writer, opt *WriterOptions) (*Writer, error) {
	if opt == nil {
		opt = &WriterOptions{}
	}
	version := opt.Version
	if version == V1_0 {
		version = V1_7
	}

	cw := &countingWriter{w: w}
	seeker, _ := w.(io.WriteSeeker)

	pdf := &Writer{
		MetaInfo: MetaInfo{
			Version: version,
			Catalog: &Catalog{},
		},
		w: &writerState{
			cw:     cw,
			seeker: seeker,
		},
		xref: map[uint32]*xRefEntry{},
	}

	if _, err := fmt.Fprintf(cw, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", version); err != nil {
		return nil, err
	}

	var id [][]byte
	if len(opt.ID) >= 2 {
		id = opt.ID
	} else {
		id0 := make([]byte, 16)
		if _, err := io.ReadFull(rand.Reader, id0); err != nil {
			return nil, err
		}
		id = [][]byte{id0, id0}
	}
	pdf.ID = id

	needsEncryption := opt.UserPassword != "" || opt.OwnerPassword != "" || opt.UserPermissions != 0
	if needsEncryption {
		var vParam, lengthBits int
		switch {
		case version >= V2_0:
			vParam, lengthBits = 5, 256
		case version >= V1_6:
			vParam, lengthBits = 4, 128
		case version >= V1_4:
			vParam, lengthBits = 2, 128
		default:
			vParam, lengthBits = 1, 40
		}

		sec, err := createStdSecHandler(id[0], opt.UserPassword, opt.OwnerPassword, opt.UserPermissions, lengthBits, vParam)
		if err != nil {
			return nil, err
		}

		cipher := cipherRC4
		if vParam >= 4 {
			cipher = cipherAES
		}
		cf := &cryptFilter{Cipher: cipher, Length: lengthBits}
		pdf.w.enc = &encryptInfo{
			sec:             sec,
			stmF:            cf,
			strF:            cf,
			efF:             cf,
			UserPermissions: opt.UserPermissions,
		}
	}

	return pdf, nil
}

// GetMeta implements the [Getter] interface.
func (w *Writer) GetMeta() *MetaInfo {
	return &w.MetaInfo
}

// SetInfo installs the document information dictionary to be written by
// [Writer.Close].
func (w *Writer) SetInfo(info *Info) {
	w.Info = info
}

// Alloc allocates a new, unused object number for an indirect object.
func (w *Writer) Alloc() Reference {
	w.nextRef++
	return NewReference(w.nextRef, 0)
}

// Put writes obj to the file as the indirect object named by ref.
func (w *Writer) Put(ref Reference, obj Object) error {
	return w.put(ref, obj, true)
}

func (w *Writer) put(ref Reference, obj Object, encrypt bool) error {
	if w.closed {
		return errors.New("pdf: writer is closed")
	}

	if encrypt && w.w.enc != nil {
		var err error
		obj, err = encryptObjectStrings(w.w.enc, ref, obj)
		if err != nil {
			return err
		}
	}

	pos := w.w.cw.pos
	if _, err := fmt.Fprintf(w.w.cw, "%d %d obj\n", ref.Number(), ref.Generation()); err != nil {
		return err
	}
	if err := writeObject(w.w.cw, obj); err != nil {
		return err
	}
	if _, err := io.WriteString(w.w.cw, "\nendobj\n"); err != nil {
		return err
	}

	w.xref[ref.Number()] = &xRefEntry{Pos: pos, Generation: ref.Generation()}
	return nil
}

// encryptObjectStrings returns a copy of obj in which every [String]
// reachable through nested [Array] and [Dict] values (including a
// [*Stream]'s dictionary) has been encrypted for the given object
// reference.  Values of other types are returned unchanged.
func encryptObjectStrings(enc *encryptInfo, ref Reference, obj Object) (Object, error) {
	if obj == nil {
		return nil, nil
	}
	native := obj.AsPDF(0)
	switch x := native.(type) {
	case String:
		buf, err := enc.EncryptBytes(ref, []byte(x))
		if err != nil {
			return nil, err
		}
		return String(buf), nil
	case Array:
		out := make(Array, len(x))
		for i, elem := range x {
			var err error
			out[i], err = encryptObjectStrings(enc, ref, elem)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case Dict:
		out := make(Dict, len(x))
		for k, v := range x {
			var err error
			out[k], err = encryptObjectStrings(enc, ref, v)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case *Stream:
		dict, err := encryptObjectStrings(enc, ref, x.Dict)
		if err != nil {
			return nil, err
		}
		return &Stream{Dict: dict.(Dict), R: x.R}, nil
	default:
		return native, nil
	}
}

// OpenStream returns a writer for the contents of a new stream object,
// applying filters in the given order (the first filter listed is
// applied last, immediately before the bytes reach the file).  dict may
// be nil.  If dict does not already contain a "Length" entry, a
// [Placeholder] is installed and filled in automatically when the
// returned writer is closed.
func (w *Writer) OpenStream(ref Reference, dict Dict, filters ...Filter) (io.WriteCloser, error) {
	return w.openStream(ref, dict, true, filters)
}

func (w *Writer) openStream(ref Reference, dict Dict, encryptContents bool, filters []Filter) (io.WriteCloser, error) {
	if w.closed {
		return nil, errors.New("pdf: writer is closed")
	}

	streamDict := maps.Clone(dict)
	if streamDict == nil {
		streamDict = Dict{}
	}
	if filter, ok := streamDict["Filter"].(Array); ok {
		streamDict["Filter"] = append(Array{}, filter...)
	}
	if decodeParms, ok := streamDict["DecodeParms"].(Array); ok {
		streamDict["DecodeParms"] = append(Array{}, decodeParms...)
	}

	for _, filter := range filters {
		name, parms, err := filter.Info(w.Version)
		if err != nil {
			return nil, err
		}
		appendFilter(streamDict, name, parms)
	}

	var length *Placeholder
	if _, hasLength := streamDict["Length"]; !hasLength {
		length = w.NewPlaceholder(10)
		streamDict["Length"] = length
	}

	var dictObj Object = streamDict
	if encryptContents && w.w.enc != nil {
		var err error
		dictObj, err = encryptObjectStrings(w.w.enc, ref, streamDict)
		if err != nil {
			return nil, err
		}
	}

	pos := w.w.cw.pos
	if _, err := fmt.Fprintf(w.w.cw, "%d %d obj\n", ref.Number(), ref.Generation()); err != nil {
		return nil, err
	}
	if err := writeObject(w.w.cw, dictObj); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w.w.cw, "\nstream\n"); err != nil {
		return nil, err
	}
	w.xref[ref.Number()] = &xRefEntry{Pos: pos, Generation: ref.Generation()}

	raw := &streamWriter{
		cw:          w.w.cw,
		streamStart: w.w.cw.pos,
		length:      length,
	}

	var out io.WriteCloser = raw
	if encryptContents && w.w.enc != nil {
		var err error
		out, err = w.w.enc.EncryptStream(ref, out)
		if err != nil {
			return nil, err
		}
	}
	for _, filter := range filters {
		var err error
		out, err = filter.Encode(w.Version, out)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// streamWriter is the innermost layer of a stream's output chain: it
// writes directly to the file and, on Close, writes the closing
// "endstream"/"endobj" keywords and fills in the stream's Length
// placeholder, if one was installed.
type streamWriter struct {
	cw          *countingWriter
	streamStart int64
	length      *Placeholder
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	return sw.cw.Write(p)
}

func (sw *streamWriter) Close() error {
	n := sw.cw.pos - sw.streamStart
	if _, err := io.WriteString(sw.cw, "\nendstream\nendobj\n"); err != nil {
		return err
	}
	if sw.length != nil {
		if err := sw.length.Set(Integer(n)); err != nil {
			return err
		}
	}
	return nil
}

// WriteCompressed writes a group of objects to a newly-created object
// stream.  None of the objects may be a stream (streams cannot be
// stored inside an object stream).
func (w *Writer) WriteCompressed(refs []Reference, objects ...Object) error {
	if err := checkCompressed(refs, objects); err != nil {
		return err
	}
	if w.closed {
		return errors.New("pdf: writer is closed")
	}

	var header bytes.Buffer
	var body bytes.Buffer
	for i, obj := range objects {
		fmt.Fprintf(&header, "%d %d ", refs[i].Number(), body.Len())
		if err := writeObject(&body, obj); err != nil {
			return err
		}
		body.WriteString("\n")
	}

	stmRef := w.Alloc()
	stmDict := Dict{
		"Type":  Name("ObjStm"),
		"N":     Integer(len(objects)),
		"First": Integer(header.Len()),
	}
	stm, err := w.OpenStream(stmRef, stmDict, FilterCompress{})
	if err != nil {
		return err
	}
	if _, err := header.WriteTo(stm); err != nil {
		return err
	}
	if _, err := body.WriteTo(stm); err != nil {
		return err
	}
	if err := stm.Close(); err != nil {
		return err
	}

	for i, ref := range refs {
		w.xref[ref.Number()] = &xRefEntry{InStream: stmRef, Pos: int64(i)}
	}
	return nil
}

// Close finalises the document: it writes the document catalog, the
// information dictionary, the encryption dictionary (if any), and a
// cross-reference stream, then closes the underlying writer if the
// Writer was created with [Create] or if closeDownstream was set
// explicitly.
func (w *Writer) Close() error {
	if w.closed {
		return errors.New("pdf: writer is closed")
	}

	trailer := Dict{}

	catalogDict := AsDict(w.Catalog)
	catalogRef := w.Alloc()
	if err := w.Put(catalogRef, catalogDict); err != nil {
		return err
	}
	trailer["Root"] = catalogRef

	if w.Info != nil {
		infoDict := AsDict(w.Info)
		if len(infoDict) > 0 {
			infoRef := w.Alloc()
			if err := w.Put(infoRef, infoDict); err != nil {
				return err
			}
			trailer["Info"] = infoRef
		}
	}

	if len(w.ID) >= 2 {
		trailer["ID"] = Array{String(w.ID[0]), String(w.ID[1])}
	}

	if w.w.enc != nil {
		encDict, err := w.w.enc.AsDict(w.Version)
		if err != nil {
			return err
		}
		encRef := w.Alloc()
		if err := w.put(encRef, encDict, false); err != nil {
			return err
		}
		trailer["Encrypt"] = encRef
	}

	if err := w.writeXRefStream(trailer); err != nil {
		return err
	}

	w.closed = true

	if w.closeDownstream {
		if c, ok := w.w.cw.w.(io.Closer); ok {
			return c.Close()
		}
	}
	return nil
}

// writeXRefStream writes the final cross-reference stream, which lists
// every object (including itself), and terminates the file.
//
// The stream covers every object number from 0 up to the highest
// allocated number, without gaps: an object number that was allocated
// but never written (for example because a caller discarded it) gets a
// free entry, since the default "/Index [0 Size]" used here requires a
// contiguous range.
func (w *Writer) writeXRefStream(trailer Dict) error {
	xrefRef := w.Alloc()
	xrefPos := w.w.cw.pos
	w.xref[xrefRef.Number()] = &xRefEntry{Pos: xrefPos, Generation: 0}

	maxNum := w.nextRef

	const w1, w2, w3 = 1, 4, 2
	var body bytes.Buffer
	for num := uint32(0); num <= maxNum; num++ {
		entry := w.xref[num]
		switch {
		case num == 0 || entry == nil || entry.IsFree():
			writeXRefField(&body, 0, w1)
			writeXRefField(&body, 0, w2)
			writeXRefField(&body, 0xffff, w3)
		case entry.InStream != 0:
			writeXRefField(&body, 2, w1)
			writeXRefField(&body, int64(entry.InStream.Number()), w2)
			writeXRefField(&body, entry.Pos, w3)
		default:
			writeXRefField(&body, 1, w1)
			writeXRefField(&body, entry.Pos, w2)
			writeXRefField(&body, int64(entry.Generation), w3)
		}
	}

	trailer["Type"] = Name("XRef")
	trailer["Size"] = Integer(maxNum + 1)
	trailer["W"] = Array{Integer(w1), Integer(w2), Integer(w3)}

	// The body is compressed in memory, so that /Length can be direct.
	var zbuf bytes.Buffer
	zw, err := FilterCompress{}.Encode(w.Version, withDummyClose{&zbuf})
	if err == nil {
		_, err = body.WriteTo(zw)
	}
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		return err
	}
	appendFilter(trailer, "FlateDecode", nil)
	trailer["Length"] = Integer(zbuf.Len())

	stm, err := w.openStream(xrefRef, trailer, false, nil)
	if err != nil {
		return err
	}
	if _, err := zbuf.WriteTo(stm); err != nil {
		return err
	}
	if err := stm.Close(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(w.w.cw, "startxref\n%d\n%%%%EOF\n", xrefPos)
	return err
}

func writeXRefField(buf *bytes.Buffer, v int64, width int) {
	for i := width - 1; i >= 0; i-- {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}

// Placeholder reserves space in the output for a value which is not yet
// known when it is first written, and which is filled in later via
// Set.  Typically used for a stream's /Length entry when the encoded
// length is not known until the stream has been fully written.
//
// When the underlying writer supports seeking, a placeholder reserves a
// fixed-width span of padding bytes in place and patches them directly.
// Otherwise it allocates an indirect object, which is written out by
// Set.
type Placeholder struct {
	w    *Writer
	size int

	// used when the output is not seekable
	ref Reference

	// used when the output is seekable
	pos int64
}

// NewPlaceholder allocates a new placeholder which reserves size bytes
// of space for the eventual value.
func (w *Writer) NewPlaceholder(size int) *Placeholder {
	p := &Placeholder{w: w, size: size}
	if w.w.seeker == nil {
		p.ref = w.Alloc()
	}
	return p
}

func (p *Placeholder) AsPDF(OutputOptions) Native { return p }

// PDF writes either a span of padding bytes (to be patched later by
// Set, on a seekable writer) or an indirect reference (to be filled in
// later by a call to Put, otherwise).
func (p *Placeholder) PDF(w io.Writer) error {
	if p.w.w.seeker != nil {
		p.pos = p.w.w.cw.pos
		_, err := w.Write(bytes.Repeat([]byte{' '}, p.size))
		return err
	}
	return p.ref.PDF(w)
}

// Set fills in the placeholder's final value.
func (p *Placeholder) Set(val Object) error {
	if p.w.w.seeker == nil {
		return p.w.Put(p.ref, val)
	}

	var buf bytes.Buffer
	if err := writeObject(&buf, val); err != nil {
		return err
	}
	if buf.Len() > p.size {
		return fmt.Errorf("pdf: placeholder value %q too long for reserved %d bytes", buf.Bytes(), p.size)
	}
	padded := append(bytes.Repeat([]byte{' '}, p.size-buf.Len()), buf.Bytes()...)

	endPos := p.w.w.cw.pos
	if _, err := p.w.w.seeker.Seek(p.pos, io.SeekStart); err != nil {
		return err
	}
	if _, err := p.w.w.seeker.Write(padded); err != nil {
		return err
	}
	_, err := p.w.w.seeker.Seek(endPos, io.SeekStart)
	return err
}
