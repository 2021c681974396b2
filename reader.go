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
	"io"
	"os"
)

// ErrorHandling selects how [NewReader] reacts to recoverable problems
// encountered while parsing the document catalog and information
// dictionary.
type ErrorHandling int

const (
	// ErrorHandlingRecover silently substitutes an empty catalog when the
	// document catalog cannot be decoded, and no information dictionary
	// when that cannot be decoded, and proceeds.  This is the default.
	ErrorHandlingRecover ErrorHandling = iota

	// ErrorHandlingReport behaves like ErrorHandlingRecover, but also
	// appends the encountered error to [Reader.Errors], so that callers
	// can inspect what was recovered from.
	ErrorHandlingReport
)

// ReaderOptions controls the behaviour of [NewReader] and [Open].
type ReaderOptions struct {
	// ReadPassword, if non-nil, is called to obtain a password for an
	// encrypted document.  The first argument is the document ID, the
	// second is the number of times a password has already been tried
	// for this document (starting at 0).  Returning "" stops the
	// search.
	ReadPassword func([]byte, int) string

	// ErrorHandling selects how non-fatal errors while extracting the
	// document catalog and information dictionary are handled.
	ErrorHandling ErrorHandling
}

// Reader gives read access to the contents of a PDF file.
//
// A Reader is safe to use from a single goroutine at a time; concurrent
// use requires external synchronisation.
type Reader struct {
	MetaInfo

	r    io.ReaderAt
	size int64

	xref map[uint32]*xRefEntry
	enc  *encryptInfo
	opt  ReaderOptions

	cache     *lruCache
	resolving map[Reference]bool

	// Errors collects non-fatal problems encountered while decoding the
	// catalog and information dictionary, when opt.ErrorHandling is
	// [ErrorHandlingReport].
	Errors []error

	closer io.Closer
}

// Open opens the PDF file at the given path for reading.  The file is
// closed automatically when the returned Reader's Close method is
// called.
func Open(fname string, opt *ReaderOptions) (*Reader, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, opt)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads the cross-reference information and the document
// catalog and information dictionary from r, and returns a [Reader]
// value which can be used to read the remaining objects in the file.
//
// r does not need to implement io.ReaderAt natively; if it does not, a
// wrapper using Seek is installed automatically.
func NewReader(r io.ReadSeeker, opt *ReaderOptions) (*Reader, error) {
	if opt == nil {
		opt = &ReaderOptions{}
	}

	ra := asReaderAt(r)
	size, err := getSize(ra)
	if err != nil {
		return nil, err
	}

	pdf := &Reader{
		MetaInfo: MetaInfo{
			Catalog: &Catalog{},
		},
		r:         ra,
		size:      size,
		xref:      map[uint32]*xRefEntry{},
		opt:       *opt,
		cache:     newCache(64),
		resolving: map[Reference]bool{},
	}

	headerScanner := newScanner(io.NewSectionReader(ra, 0, size), nil, nil)
	version, err := headerScanner.readHeaderVersion()
	if err != nil {
		return nil, err
	}
	pdf.Version = version

	startXRef, err := pdf.findXRef()
	if err != nil {
		return nil, err
	}
	trailer, err := pdf.readXRefChain(startXRef)
	if err != nil {
		return nil, err
	}
	pdf.Trailer = trailer

	if idArr, ok := trailer["ID"].(Array); ok {
		for _, elem := range idArr {
			if s, ok := elem.(String); ok {
				pdf.ID = append(pdf.ID, []byte(s))
			}
		}
	}

	if encObj, ok := trailer["Encrypt"]; ok && encObj != nil {
		enc, err := pdf.parseEncryptDict(encObj, opt.ReadPassword)
		if err != nil {
			return nil, err
		}
		pdf.enc = enc
	}

	cat, err := ExtractCatalog(pdf, trailer["Root"])
	if err != nil {
		if pdf.opt.ErrorHandling == ErrorHandlingReport {
			pdf.Errors = append(pdf.Errors, err)
		}
		cat = &Catalog{}
	}
	pdf.Catalog = cat

	info, err := ExtractInfo(pdf, trailer["Info"])
	if err != nil {
		if pdf.opt.ErrorHandling == ErrorHandlingReport {
			pdf.Errors = append(pdf.Errors, err)
		}
		info = nil
	}
	pdf.Info = info

	return pdf, nil
}

// GetMeta implements the [Getter] interface.
func (r *Reader) GetMeta() *MetaInfo {
	return &r.MetaInfo
}

// Get implements the [Getter] interface.  It reads and, if necessary,
// decrypts the object with the given reference, consulting and updating
// the reader's object cache.
func (r *Reader) Get(ref Reference, canObjStm bool) (Native, error) {
	entry := r.xref[ref.Number()]
	if entry == nil || entry.IsFree() {
		return nil, nil
	}
	if entry.InStream != 0 {
		if !canObjStm {
			return nil, &MalformedFileError{
				Err: errors.New("object stream not allowed here"),
			}
		}
	} else if entry.Generation != ref.Generation() {
		return nil, nil
	}

	if cached, ok := r.cache.Get(ref); ok {
		if cached == nil {
			return nil, nil
		}
		return cached.(Native), nil
	}

	if r.resolving[ref] {
		return nil, &MalformedFileError{
			Err: errors.New("reference cycle while decoding object"),
		}
	}
	r.resolving[ref] = true
	defer delete(r.resolving, ref)

	var obj Native
	var err error
	if entry.InStream != 0 {
		obj, err = r.getFromObjectStream(ref, entry)
	} else {
		obj, err = r.parseObjectAt(entry.Pos, ref)
	}
	if err != nil {
		return nil, err
	}

	r.cache.Put(ref, obj)
	return obj, nil
}

// parseObjectAt parses the indirect object starting at the given byte
// offset, which must name ref as its object number and generation.
func (r *Reader) parseObjectAt(pos int64, ref Reference) (Native, error) {
	if pos < 0 || pos >= r.size {
		return nil, &MalformedFileError{Err: errors.New("object offset out of range")}
	}

	var decryptString func(String) (String, error)
	if r.enc != nil {
		decryptString = func(s String) (String, error) {
			buf, err := r.enc.DecryptBytes(ref, []byte(s))
			if err != nil {
				return nil, err
			}
			return String(buf), nil
		}
	}

	sr := io.NewSectionReader(r.r, pos, r.size-pos)
	s := newScanner(sr, func(obj Object) (Integer, error) {
		return getIntegerNoObjStm(r, obj)
	}, decryptString)

	if err := s.SkipWhiteSpace(); err != nil {
		return nil, err
	}
	num, err := s.ReadInteger()
	if err != nil {
		return nil, err
	}
	if err := s.SkipWhiteSpace(); err != nil {
		return nil, err
	}
	gen, err := s.ReadInteger()
	if err != nil {
		return nil, err
	}
	if err := s.SkipWhiteSpace(); err != nil {
		return nil, err
	}
	if !s.hasKeyword("obj") {
		return nil, s.malformed("expected obj keyword")
	}
	if uint32(num) != ref.Number() || uint16(gen) != ref.Generation() {
		return nil, s.malformed("object number mismatch: found %d %d obj, expected %s", num, gen, ref)
	}

	obj, err := s.ReadObject()
	if err != nil {
		return nil, err
	}
	if stm, isStream := obj.(*Stream); isStream && r.enc != nil {
		stm.crypt = &filterCrypt{enc: r.enc, ref: ref}
	}
	if obj == nil {
		return nil, nil
	}
	return obj.AsPDF(0), nil
}

// getFromObjectStream extracts a compressed object from the object
// stream named by entry.InStream.  The member objects of an object
// stream are never individually encrypted; only the containing stream
// itself was encrypted, and that encryption has already been removed by
// the time the stream data is decoded.
func (r *Reader) getFromObjectStream(ref Reference, entry *xRefEntry) (Native, error) {
	stmObj, err := r.Get(entry.InStream, false)
	if err != nil {
		return nil, err
	}
	stm, ok := stmObj.(*Stream)
	if !ok {
		return nil, &MalformedFileError{
			Err: errors.New("object stream reference does not point to a stream"),
		}
	}

	n, err := GetInt(r, stm.Dict["N"])
	if err != nil {
		return nil, err
	}
	first, err := GetInt(r, stm.Dict["First"])
	if err != nil {
		return nil, err
	}

	data, err := ReadAll(r, stm)
	if err != nil {
		return nil, err
	}

	idx := int(entry.Pos)
	if idx < 0 || idx >= int(n) {
		return nil, &MalformedFileError{
			Err: errors.New("object index out of range in object stream"),
		}
	}

	header := newScanner(bytes.NewReader(data), nil, nil)
	var offset int64 = -1
	for i := 0; i < int(n); i++ {
		if err := header.SkipWhiteSpace(); err != nil {
			return nil, err
		}
		if _, err := header.ReadInteger(); err != nil { // object number
			return nil, err
		}
		if err := header.SkipWhiteSpace(); err != nil {
			return nil, err
		}
		off, err := header.ReadInteger()
		if err != nil {
			return nil, err
		}
		if i == idx {
			offset = int64(off)
		}
	}
	if offset < 0 {
		return nil, &MalformedFileError{Err: errors.New("object not found in object stream")}
	}

	bodyStart := int64(first) + offset
	if bodyStart < 0 || bodyStart > int64(len(data)) {
		return nil, &MalformedFileError{Err: errors.New("object offset out of range in object stream")}
	}

	body := newScanner(bytes.NewReader(data[bodyStart:]), nil, nil)
	obj, err := body.ReadObject()
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	return obj.AsPDF(0), nil
}

// Resolve implements lookups for the [Getter] interface via the
// package-level [Resolve] function.
func (r *Reader) Resolve(obj Object) (Native, error) {
	return Resolve(r, obj)
}

// GetStream resolves ref and casts the result to a [*Stream].
func (r *Reader) GetStream(ref Object) (*Stream, error) {
	return GetStream(r, ref)
}

// GetString resolves ref and casts the result to a [String], decrypting
// it if required.
func (r *Reader) GetString(ref Object) (String, error) {
	return GetString(r, ref)
}

// GetDict resolves ref and casts the result to a [Dict].
func (r *Reader) GetDict(ref Object) (Dict, error) {
	return GetDict(r, ref)
}

// GetArray resolves ref and casts the result to an [Array].
func (r *Reader) GetArray(ref Object) (Array, error) {
	return GetArray(r, ref)
}

// GetName resolves ref and casts the result to a [Name].
func (r *Reader) GetName(ref Object) (Name, error) {
	return GetName(r, ref)
}

// GetInt resolves ref and returns the result as an [Integer].
func (r *Reader) GetInt(ref Object) (Integer, error) {
	return GetInt(r, ref)
}

// AuthenticateOwner tries to authenticate as the document owner, using
// the ReadPassword callback from the [ReaderOptions] the reader was
// created with (if any).  It is a no-op if the document is not
// encrypted.
func (r *Reader) AuthenticateOwner() error {
	if r.enc == nil {
		return nil
	}
	_, err := r.enc.sec.GetKey(true)
	return err
}

// AuthenticateUser tries to authenticate as the document user, using the
// ReadPassword callback from the [ReaderOptions] the reader was created
// with (if any).  It is a no-op if the document is not encrypted.
func (r *Reader) AuthenticateUser() error {
	if r.enc == nil {
		return nil
	}
	_, err := r.enc.sec.GetKey(false)
	return err
}

// Close releases the resources held by the reader.  If the reader was
// created with [Open], this closes the underlying file.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
