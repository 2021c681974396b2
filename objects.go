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

package pdf

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"golang.org/x/text/language"
)

// Wrap annotates err with a description of the operation during which it
// occurred.  If err is nil, Wrap returns nil.
func Wrap(err error, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// wrap is the unexported counterpart of [Wrap], used internally to
// annotate errors bubbling up from nested decoders (e.g. the encryption
// dictionary's sub-filters).
func wrap(err error, operation string) error {
	return Wrap(err, operation)
}

// Embedder is implemented by types whose values can occur as (possibly
// indirect) objects inside a PDF file.  Concrete implementations of the
// [Function], [NumberTree], [NameTree] and [Action] interfaces satisfy
// this automatically, since each already implements [Object].
type Embedder interface {
	Object
}

// Round rounds x to the given number of decimal digits after the point.
func Round(x float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(x*p) / p
}

// fieldTag holds the parsed contents of a `pdf:"..."` struct tag.
type fieldTag struct {
	name        string // overrides the Go field name as the Dict key; "" means unset
	typeValue   string // set on the blank-identifier "Type=X" tag
	optional    bool
	extra       bool
	allowString bool
}

func parseFieldTag(raw string) fieldTag {
	var ft fieldTag
	for _, part := range strings.Split(raw, ",") {
		switch {
		case part == "optional":
			ft.optional = true
		case part == "extra":
			ft.extra = true
		case part == "allowstring":
			ft.allowString = true
		case strings.HasPrefix(part, "Type="):
			ft.typeValue = strings.TrimPrefix(part, "Type=")
		case part != "":
			ft.name = part
		}
	}
	return ft
}

// AsDict converts a pointer to a struct into a [Dict], using the `pdf`
// struct tags to control the conversion.  Fields with the zero value are
// omitted from the result unless they are required (i.e. not tagged
// "optional").
//
// This is the encoding counterpart of [DecodeDict].
func AsDict(v any) Dict {
	val := reflect.ValueOf(v)
	for val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	dict := Dict{}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := parseFieldTag(f.Tag.Get("pdf"))
		fv := val.Field(i)

		if f.Name == "_" {
			if tag.typeValue != "" {
				dict["Type"] = Name(tag.typeValue)
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		if tag.extra {
			iter := fv.MapRange()
			for iter.Next() {
				k := iter.Key().String()
				s, ok := PDFDocEncode(iter.Value().String())
				if !ok {
					s = String(iter.Value().String())
				}
				dict[Name(k)] = TextString(s)
			}
			continue
		}

		key := f.Name
		if tag.name != "" {
			key = tag.name
		}

		obj, isZero := encodeField(fv)
		if obj == nil {
			continue
		}
		if isZero && tag.optional {
			continue
		}
		dict[Name(key)] = obj
	}

	return dict
}

func encodeField(fv reflect.Value) (obj Object, isZero bool) {
	isZero = fv.IsZero()

	switch x := fv.Interface().(type) {
	case Version:
		if !x.isValid() {
			return nil, true
		}
		return Name(x.String()), isZero
	case language.Tag:
		s := x.String()
		if s == "" || s == "und" {
			return nil, true
		}
		return TextString(s), isZero
	case bool:
		return Boolean(x), isZero
	}

	switch fv.Kind() {
	case reflect.Bool:
		return Boolean(fv.Bool()), isZero
	case reflect.String:
		return fv.Interface().(Object), isZero
	}

	if obj, ok := fv.Interface().(Object); ok {
		if obj == nil {
			return nil, true
		}
		return obj, isZero
	}

	return nil, true
}

// DecodeDict fills the fields of the struct pointed to by ptr from the
// contents of dict, using the `pdf` struct tags to control the conversion.
// r is used to resolve indirect references; it may be nil if dict is
// known to only contain direct values.
//
// This is the decoding counterpart of [AsDict].
func DecodeDict(r Getter, ptr any, dict Dict) error {
	val := reflect.ValueOf(ptr)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("pdf: DecodeDict needs a pointer, got %T", ptr)
	}
	val = val.Elem()
	typ := val.Type()

	used := make(map[string]bool, len(dict))

	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := parseFieldTag(f.Tag.Get("pdf"))
		fv := val.Field(i)

		if f.Name == "_" {
			if tag.typeValue != "" {
				if t, ok := dict["Type"]; ok {
					used["Type"] = true
					name, err := GetName(r, t)
					if err != nil {
						return err
					}
					if name != "" && name != Name(tag.typeValue) {
						return &MalformedFileError{
							Err: fmt.Errorf("expected /Type %s but got %s", tag.typeValue, name),
						}
					}
				}
			}
			continue
		}
		if !f.IsExported() || tag.extra {
			continue
		}

		key := f.Name
		if tag.name != "" {
			key = tag.name
		}

		obj, present := dict[Name(key)]
		used[key] = true
		if !present || obj == nil {
			if tag.optional {
				continue
			}
			return fmt.Errorf("pdf: required field %s is missing", key)
		}

		if err := decodeField(r, fv, obj, tag); err != nil {
			return Wrap(err, key)
		}
	}

	// collect the left-over entries into the "extra" field, if present
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := parseFieldTag(f.Tag.Get("pdf"))
		if !tag.extra || !f.IsExported() {
			continue
		}
		fv := val.Field(i)
		if fv.IsNil() {
			fv.Set(reflect.MakeMap(f.Type))
		}
		for k, v := range dict {
			if used[string(k)] {
				continue
			}
			s, err := GetTextString(r, v)
			if err != nil {
				continue
			}
			fv.SetMapIndex(reflect.ValueOf(string(k)), reflect.ValueOf(string(s)))
		}
	}

	return nil
}

func decodeField(r Getter, fv reflect.Value, obj Object, tag fieldTag) error {
	switch fv.Interface().(type) {
	case Reference:
		ref, ok := obj.(Reference)
		if !ok {
			return fmt.Errorf("expected indirect reference but got %T", obj)
		}
		fv.Set(reflect.ValueOf(ref))
		return nil
	case Version:
		v, err := decodeVersion(obj)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(v))
		return nil
	case language.Tag:
		ts, ok := obj.(asTextStringer)
		if !ok {
			return fmt.Errorf("expected text string but got %T", obj)
		}
		t, err := language.Parse(string(ts.AsTextString()))
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(t))
		return nil
	case TextString:
		ts, ok := obj.(asTextStringer)
		if !ok {
			return fmt.Errorf("expected text string but got %T", obj)
		}
		fv.Set(reflect.ValueOf(ts.AsTextString()))
		return nil
	case Date:
		switch x := obj.(type) {
		case Date:
			fv.Set(reflect.ValueOf(x))
			return nil
		case String:
			d, err := x.AsDate()
			if err != nil {
				return err
			}
			fv.Set(reflect.ValueOf(d))
			return nil
		case TextString:
			d, err := String(x).AsDate()
			if err != nil {
				return err
			}
			fv.Set(reflect.ValueOf(d))
			return nil
		default:
			return fmt.Errorf("expected date but got %T", obj)
		}
	case bool:
		b, err := GetBoolean(r, obj)
		if err != nil {
			return err
		}
		fv.SetBool(bool(b))
		return nil
	}

	switch fv.Kind() {
	case reflect.Bool:
		b, err := GetBoolean(r, obj)
		if err != nil {
			return err
		}
		fv.SetBool(bool(b))
		return nil
	case reflect.String:
		if fv.Type() == reflect.TypeOf(Name("")) {
			resolved, err := Resolve(r, obj)
			if err != nil {
				return err
			}
			switch x := resolved.(type) {
			case Name:
				fv.Set(reflect.ValueOf(x))
				return nil
			case String:
				if tag.allowString {
					fv.Set(reflect.ValueOf(Name(x)))
					return nil
				}
			}
			return fmt.Errorf("expected Name but got %T", resolved)
		}
	}

	target := fv.Type()
	resolved, err := Resolve(r, obj)
	if err != nil {
		return err
	}
	if resolved == nil {
		return nil
	}
	rv := reflect.ValueOf(resolved)
	if rv.Type().AssignableTo(target) {
		fv.Set(rv)
		return nil
	}
	if target.Kind() == reflect.Interface && rv.Type().Implements(target) {
		fv.Set(rv)
		return nil
	}

	return fmt.Errorf("cannot decode %T into %s", resolved, target)
}

func decodeVersion(obj Object) (Version, error) {
	switch x := obj.(type) {
	case Name:
		return ParseVersion(string(x))
	case String:
		return ParseVersion(strings.TrimSpace(string(x)))
	case TextString:
		return ParseVersion(strings.TrimSpace(string(x)))
	case Real:
		return ParseVersion(fmt.Sprintf("%.1f", float64(x)))
	default:
		return 0, fmt.Errorf("pdf: invalid version value %T", obj)
	}
}

// pdfDocToRune and runeToPDFDoc implement the subset of Adobe's
// PDFDocEncoding used by [PDFDocEncode] and [PDFDocDecode]: printable
// ASCII (plus tab, line feed and carriage return) and the Latin-1
// punctuation/letter block 0xA0-0xFF map straight through,
// and the two blocks of glyphs at 0x18-0x1F and 0x80-0x9F that diverge
// from Latin-1 are translated explicitly.
var pdfDocToRune = [256]rune{
	0x18: '˘', // breve
	0x19: 'ˇ', // caron
	0x1A: 'ˆ', // circumflex
	0x1B: '˙', // dotaccent
	0x1C: '˝', // hungarumlaut
	0x1D: '˛', // ogonek
	0x1E: '˚', // ring
	0x1F: '˜', // tilde

	0x80: '•', // bullet
	0x81: '†', // dagger
	0x82: '‡', // daggerdbl
	0x83: '…', // ellipsis
	0x84: '—', // emdash
	0x85: '–', // endash
	0x86: 'ƒ', // florin
	0x87: '⁄', // fraction
	0x88: '‹', // guilsinglleft
	0x89: '›', // guilsinglright
	0x8A: '−', // minus
	0x8B: '‰', // perthousand
	0x8C: '„', // quotedblbase
	0x8D: '“', // quotedblleft
	0x8E: '”', // quotedblright
	0x8F: '‘', // quoteleft
	0x90: '’', // quoteright
	0x91: '‚', // quotesinglbase
	0x92: '™', // trademark
	0x93: 'ﬁ', // fi
	0x94: 'ﬂ', // fl
	0x95: 'Ł', // Lslash
	0x96: 'Œ', // OE
	0x97: 'Š', // Scaron
	0x98: 'Ÿ', // Ydieresis
	0x99: 'Ž', // Zcaron
	0x9A: 'ı', // dotlessi
	0x9B: 'ł', // lslash
	0x9C: 'œ', // oe
	0x9D: 'š', // scaron
	0x9E: 'ž', // zcaron
}

var runeToPDFDoc map[rune]byte

func init() {
	runeToPDFDoc = make(map[rune]byte, 40)
	for b, r := range pdfDocToRune {
		if r != 0 {
			runeToPDFDoc[r] = byte(b)
		}
	}
}

// PDFDocEncode converts s to PDFDocEncoding, returning ok == false if s
// contains a character that cannot be represented.
func PDFDocEncode(s string) (String, bool) {
	buf := make(String, 0, len(s))
	for _, r := range s {
		if b, ok := runeToPDFDoc[r]; ok {
			buf = append(buf, b)
			continue
		}
		if r == '\t' || r == '\n' || r == '\r' || r >= 0x20 && r < 0x7F || r >= 0xA0 && r < 0x100 {
			buf = append(buf, byte(r))
			continue
		}
		return nil, false
	}
	return buf, true
}

// PDFDocDecode converts x from PDFDocEncoding to a Go string.
func PDFDocDecode(x String) string {
	var b strings.Builder
	b.Grow(len(x))
	for _, c := range x {
		if r := pdfDocToRune[c]; r != 0 {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(rune(c))
	}
	return b.String()
}

// ExtractInfo decodes a PDF Document Information Dictionary.
// If obj is nil, ExtractInfo returns nil, nil.
func ExtractInfo(r Getter, obj Object) (*Info, error) {
	dict, err := GetDict(r, obj)
	if err != nil {
		return nil, err
	}
	if dict == nil {
		return nil, nil
	}
	info := &Info{}
	if err := DecodeDict(r, info, dict); err != nil {
		return nil, err
	}
	return info, nil
}
