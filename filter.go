// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2020  Jochen Voss <voss@seehuhn.de>
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
	"compress/zlib"
	"io"

	"pdfnaut.dev/go/cos/ascii85"
	"pdfnaut.dev/go/cos/internal/filter/asciihex"
	"pdfnaut.dev/go/cos/internal/filter/predict"
	"pdfnaut.dev/go/cos/internal/filter/runlength"
	"pdfnaut.dev/go/cos/lzw"
)

// Filter is implemented by every stream filter known to this package:
// FlateDecode, LZWDecode, ASCIIHexDecode, ASCII85Decode, RunLengthDecode,
// and the identity pass-through used for the image filters (DCTDecode,
// CCITTFaxDecode, JPXDecode).
type Filter interface {
	// Info returns the /Filter name and /DecodeParms dictionary which
	// represent this filter when it is written to a stream dictionary.
	Info(v Version) (Name, Dict, error)

	// Encode wraps w so that data written to the result is encoded
	// before being passed on to w.
	Encode(v Version, w io.WriteCloser) (io.WriteCloser, error)

	// Decode wraps r so that reading from the result yields the decoded
	// stream data.
	Decode(v Version, r io.Reader) (io.ReadCloser, error)
}

func makeFilter(name Name, parms Dict) Filter {
	switch name {
	case "FlateDecode", "Fl":
		return &flateFilter{params: predictParams(parms)}
	case "LZWDecode", "LZW":
		return &lzwFilter{params: predictParams(parms), earlyChange: earlyChangeOf(parms)}
	case "ASCIIHexDecode", "AHx":
		return asciiHexFilter{}
	case "ASCII85Decode", "A85":
		return ascii85Filter{}
	case "RunLengthDecode", "RL":
		return runLengthFilter{}
	default:
		// DCTDecode, CCITTFaxDecode, JPXDecode and any other unrecognized
		// name: the payload is an image encoding that this package does
		// not decode to raw samples (see the "rendering or rasterization"
		// non-goal); the bytes are passed through unchanged so callers
		// that only need round-tripping still work.
		return passthroughFilter{name: name, parms: parms}
	}
}

func predictParams(parms Dict) predict.Params {
	p := predict.Params{}
	if parms == nil {
		return p
	}
	if v, ok := parms["Predictor"].(Integer); ok {
		p.Predictor = int(v)
	}
	if v, ok := parms["Colors"].(Integer); ok {
		p.Colors = int(v)
	}
	if v, ok := parms["BitsPerComponent"].(Integer); ok {
		p.BitsPerComponent = int(v)
	}
	if v, ok := parms["Columns"].(Integer); ok {
		p.Columns = int(v)
	}
	return p
}

func earlyChangeOf(parms Dict) bool {
	if parms == nil {
		return true
	}
	if v, ok := parms["EarlyChange"].(Integer); ok {
		return v != 0
	}
	return true
}

func predictParmsDict(p predict.Params) Dict {
	if p.Predictor == 0 || p.Predictor == 1 {
		return nil
	}
	d := Dict{"Predictor": Integer(p.Predictor)}
	if p.Colors != 0 && p.Colors != 1 {
		d["Colors"] = Integer(p.Colors)
	}
	if p.BitsPerComponent != 0 && p.BitsPerComponent != 8 {
		d["BitsPerComponent"] = Integer(p.BitsPerComponent)
	}
	if p.Columns != 0 && p.Columns != 1 {
		d["Columns"] = Integer(p.Columns)
	}
	return d
}

// --- FlateDecode ---------------------------------------------------------

type flateFilter struct {
	params predict.Params
}

func (f *flateFilter) Info(Version) (Name, Dict, error) {
	return "FlateDecode", predictParmsDict(f.params), nil
}

func (f *flateFilter) Encode(_ Version, w io.WriteCloser) (io.WriteCloser, error) {
	zw := zlib.NewWriter(w)
	base := &closeChain{Writer: zw, closers: []io.Closer{zw, w}}
	pw, err := predict.NewWriter(base, f.params)
	if err != nil {
		return nil, &FilterError{Filter: "FlateDecode", Err: err}
	}
	return pw, nil
}

func (f *flateFilter) Decode(_ Version, r io.Reader) (io.ReadCloser, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, &FilterError{Filter: "FlateDecode", Err: err}
	}
	pr, err := predict.NewReader(zr, f.params)
	if err != nil {
		return nil, &FilterError{Filter: "FlateDecode", Err: err}
	}
	return &readCloser{Reader: pr, closer: zr}, nil
}

// --- LZWDecode -----------------------------------------------------------

type lzwFilter struct {
	params      predict.Params
	earlyChange bool
}

func (f *lzwFilter) Info(Version) (Name, Dict, error) {
	d := predictParmsDict(f.params)
	if !f.earlyChange {
		if d == nil {
			d = Dict{}
		}
		d["EarlyChange"] = Integer(0)
	}
	return "LZWDecode", d, nil
}

func (f *lzwFilter) Encode(_ Version, w io.WriteCloser) (io.WriteCloser, error) {
	lw, err := lzw.NewWriter(w, f.earlyChange)
	if err != nil {
		return nil, &FilterError{Filter: "LZWDecode", Err: err}
	}
	pw, err := predict.NewWriter(lw, f.params)
	if err != nil {
		return nil, &FilterError{Filter: "LZWDecode", Err: err}
	}
	return pw, nil
}

func (f *lzwFilter) Decode(_ Version, r io.Reader) (io.ReadCloser, error) {
	lr := lzw.NewReader(r, f.earlyChange)
	pr, err := predict.NewReader(lr, f.params)
	if err != nil {
		return nil, &FilterError{Filter: "LZWDecode", Err: err}
	}
	return &readCloser{Reader: pr, closer: lr}, nil
}

// --- ASCIIHexDecode --------------------------------------------------------

type asciiHexFilter struct{}

func (asciiHexFilter) Info(Version) (Name, Dict, error) { return "ASCIIHexDecode", nil, nil }

func (asciiHexFilter) Encode(_ Version, w io.WriteCloser) (io.WriteCloser, error) {
	return asciihex.Encode(w, 80), nil
}

func (asciiHexFilter) Decode(_ Version, r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(asciihex.Decode(r)), nil
}

// --- ASCII85Decode -------------------------------------------------------

type ascii85Filter struct{}

func (ascii85Filter) Info(Version) (Name, Dict, error) { return "ASCII85Decode", nil, nil }

func (ascii85Filter) Encode(_ Version, w io.WriteCloser) (io.WriteCloser, error) {
	return ascii85.Filter.Encode(w)
}

func (ascii85Filter) Decode(_ Version, r io.Reader) (io.ReadCloser, error) {
	dr, err := ascii85.Filter.Decode(r)
	if err != nil {
		return nil, &FilterError{Filter: "ASCII85Decode", Err: err}
	}
	return io.NopCloser(dr), nil
}

// --- RunLengthDecode -------------------------------------------------------

type runLengthFilter struct{}

func (runLengthFilter) Info(Version) (Name, Dict, error) { return "RunLengthDecode", nil, nil }

func (runLengthFilter) Encode(_ Version, w io.WriteCloser) (io.WriteCloser, error) {
	return runlength.Encode(w), nil
}

func (runLengthFilter) Decode(_ Version, r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(runlength.Decode(r)), nil
}

// --- pass-through (DCTDecode, CCITTFaxDecode, JPXDecode, unknown) --------

type passthroughFilter struct {
	name  Name
	parms Dict
}

func (f passthroughFilter) Info(Version) (Name, Dict, error) { return f.name, f.parms, nil }

func (f passthroughFilter) Encode(_ Version, w io.WriteCloser) (io.WriteCloser, error) {
	return w, nil
}

func (f passthroughFilter) Decode(_ Version, r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// --- exported filter descriptors --------------------------------------------

// FilterCompress selects the FlateDecode filter.  The map, if non-empty, is
// interpreted as a /DecodeParms dictionary (Predictor, Colors,
// BitsPerComponent, Columns).
type FilterCompress Dict

func (f FilterCompress) Info(v Version) (Name, Dict, error) {
	return makeFilter("FlateDecode", Dict(f)).Info(v)
}
func (f FilterCompress) Encode(v Version, w io.WriteCloser) (io.WriteCloser, error) {
	return makeFilter("FlateDecode", Dict(f)).Encode(v, w)
}
func (f FilterCompress) Decode(v Version, r io.Reader) (io.ReadCloser, error) {
	return makeFilter("FlateDecode", Dict(f)).Decode(v, r)
}

// FilterFlate is a synonym for [FilterCompress].
type FilterFlate = FilterCompress

// FilterLZW selects the LZWDecode filter.  The map, if non-empty, is
// interpreted as a /DecodeParms dictionary.
type FilterLZW Dict

func (f FilterLZW) Info(v Version) (Name, Dict, error) {
	return makeFilter("LZWDecode", Dict(f)).Info(v)
}
func (f FilterLZW) Encode(v Version, w io.WriteCloser) (io.WriteCloser, error) {
	return makeFilter("LZWDecode", Dict(f)).Encode(v, w)
}
func (f FilterLZW) Decode(v Version, r io.Reader) (io.ReadCloser, error) {
	return makeFilter("LZWDecode", Dict(f)).Decode(v, r)
}

// FilterASCIIHex selects the ASCIIHexDecode filter.
type FilterASCIIHex Dict

func (f FilterASCIIHex) Info(v Version) (Name, Dict, error) {
	return makeFilter("ASCIIHexDecode", Dict(f)).Info(v)
}
func (f FilterASCIIHex) Encode(v Version, w io.WriteCloser) (io.WriteCloser, error) {
	return makeFilter("ASCIIHexDecode", Dict(f)).Encode(v, w)
}
func (f FilterASCIIHex) Decode(v Version, r io.Reader) (io.ReadCloser, error) {
	return makeFilter("ASCIIHexDecode", Dict(f)).Decode(v, r)
}

// FilterASCII85 selects the ASCII85Decode filter.
type FilterASCII85 Dict

func (f FilterASCII85) Info(v Version) (Name, Dict, error) {
	return makeFilter("ASCII85Decode", Dict(f)).Info(v)
}
func (f FilterASCII85) Encode(v Version, w io.WriteCloser) (io.WriteCloser, error) {
	return makeFilter("ASCII85Decode", Dict(f)).Encode(v, w)
}
func (f FilterASCII85) Decode(v Version, r io.Reader) (io.ReadCloser, error) {
	return makeFilter("ASCII85Decode", Dict(f)).Decode(v, r)
}

// FilterRunLength selects the RunLengthDecode filter.
type FilterRunLength Dict

func (f FilterRunLength) Info(v Version) (Name, Dict, error) {
	return makeFilter("RunLengthDecode", Dict(f)).Info(v)
}
func (f FilterRunLength) Encode(v Version, w io.WriteCloser) (io.WriteCloser, error) {
	return makeFilter("RunLengthDecode", Dict(f)).Encode(v, w)
}
func (f FilterRunLength) Decode(v Version, r io.Reader) (io.ReadCloser, error) {
	return makeFilter("RunLengthDecode", Dict(f)).Decode(v, r)
}

// FilterInfo is a generic filter descriptor, used when the filter name is
// only known at run time (for example when copying a filter chain read
// from an existing file).
type FilterInfo struct {
	Name  Name
	Parms Dict
}

func (f *FilterInfo) Info(Version) (Name, Dict, error) { return f.Name, f.Parms, nil }

func (f *FilterInfo) Encode(v Version, w io.WriteCloser) (io.WriteCloser, error) {
	return makeFilter(f.Name, f.Parms).Encode(v, w)
}

func (f *FilterInfo) Decode(v Version, r io.Reader) (io.ReadCloser, error) {
	return makeFilter(f.Name, f.Parms).Decode(v, r)
}

// checkCompressed verifies that refs and objects have matching lengths and
// that none of the objects is a stream (streams cannot be stored in object
// streams, see 7.5.7 of ISO 32000-2:2020).
func checkCompressed(refs []Reference, objects []Object) error {
	if len(refs) != len(objects) {
		return Errorf("WriteCompressed: got %d references but %d objects", len(refs), len(objects))
	}
	for _, obj := range objects {
		if _, isStream := obj.(*Stream); isStream {
			return Errorf("WriteCompressed: cannot store a stream in an object stream")
		}
	}
	return nil
}

// appendFilter records a filter in a stream dictionary's /Filter and
// /DecodeParms entries, converting from a single filter to an array once a
// second filter is added.
func appendFilter(dict Dict, name Name, parms Dict) {
	switch existing := dict["Filter"].(type) {
	case nil:
		dict["Filter"] = name
		if parms != nil {
			dict["DecodeParms"] = parms
		}
	case Name:
		dict["Filter"] = Array{existing, name}
		oldParms, _ := dict["DecodeParms"].(Dict)
		dict["DecodeParms"] = Array{dictOrNull(oldParms), dictOrNull(parms)}
	case Array:
		dict["Filter"] = append(existing, name)
		oldParms, _ := dict["DecodeParms"].(Array)
		dict["DecodeParms"] = append(oldParms, dictOrNull(parms))
	}
}

func dictOrNull(d Dict) Object {
	if d == nil {
		return nil
	}
	return d
}

// --- small io helpers ------------------------------------------------------

// readCloser pairs a Reader with a separate Closer, so that predictor
// readers (which only implement io.Reader) can be closed via the
// underlying decoder.
type readCloser struct {
	io.Reader
	closer io.Closer
}

func (rc *readCloser) Close() error {
	return rc.closer.Close()
}

// closeChain is a Writer whose Close call closes a sequence of
// io.Closers in order, innermost first.
type closeChain struct {
	io.Writer
	closers []io.Closer
}

func (c *closeChain) Close() error {
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			return err
		}
	}
	return nil
}

// withDummyClose adapts an io.Writer which does not need closing (for
// example a *bytes.Buffer) to the io.WriteCloser interface expected by
// [Filter.Encode].
type withDummyClose struct {
	io.Writer
}

func (withDummyClose) Close() error { return nil }
