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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errVersion      = errors.New("unsupported PDF version")
	errCorrupted    = errors.New("corrupted ciphertext")
	errNoDate       = errors.New("not a valid date string")
	errNoRectangle  = errors.New("not a valid PDF rectangle")
	errDuplicateRef = errors.New("object already written")
	errShortID      = errors.New("PDF file identifier too short")

	// errInvalidPassword indicates that a password could not be encoded
	// using PDFDocEncoding (for security handler revisions 2-4) or is not
	// valid UTF-8 (for revision 6).
	errInvalidPassword = errors.New("password cannot be encoded")

	// ErrNoPassword reports that a document is encrypted and no password
	// has been authenticated yet.  No function of this package returns
	// it; decrypting an object of a locked document fails with an
	// [AuthenticationError] instead.
	ErrNoPassword = errors.New("document is encrypted and locked")

	// ErrLocked reports an attempt to read pages or stream content from
	// a document that is still locked.  No function of this package
	// returns it; such reads fail with an [AuthenticationError] instead.
	ErrLocked = errors.New("document is locked, authenticate a password first")

	// ErrUnsupportedRevision is returned when an encryption dictionary
	// specifies a standard security handler revision this package does
	// not implement (only revisions 2-4 and 6 are supported; revision 5,
	// an early draft of AES-256 superseded by revision 6, is not).
	ErrUnsupportedRevision = errors.New("unsupported standard security handler revision")
)

// Error is a simple string-based error, used for conditions that do not
// warrant their own error type.
type Error string

func (err Error) Error() string { return string(err) }

// AuthenticationError indicates that authentication failed because the correct
// password has not been supplied.
type AuthenticationError struct {
	ID []byte
}

func (err *AuthenticationError) Error() string {
	if err.ID == nil {
		return "authentication failed"
	}
	return fmt.Sprintf("authentication failed for document ID %x", err.ID)
}

// MalformedFileError indicates that the PDF file could not be parsed.
//
// Loc records a breadcrumb trail of object references leading to the
// failure (innermost first), for example "object 12 0 R", used when the
// error surfaces deep inside a nested structure.
type MalformedFileError struct {
	Err error
	Pos int64
	Loc []string
}

func (err *MalformedFileError) Error() string {
	middle := ""
	if err.Err != nil {
		middle = ": " + err.Err.Error()
	}
	tail := ""
	if err.Pos > 0 {
		tail = " (at byte " + strconv.FormatInt(err.Pos, 10) + ")"
	}
	loc := ""
	if len(err.Loc) > 0 {
		loc = " [" + strings.Join(err.Loc, " -> ") + "]"
	}
	return "not a valid PDF file" + middle + tail + loc
}

func (err *MalformedFileError) Unwrap() error {
	return err.Err
}

// VersionError is returned when trying to use a feature in a PDF file which is
// not supported by the PDF version used.  Use [CheckVersion] to create
// VersionError objects.
type VersionError struct {
	Operation string
	Earliest  Version
}

func (err *VersionError) Error() string {
	return (err.Operation + " requires PDF version " +
		err.Earliest.String() + " or later")
}

// CheckVersion returns a [VersionError] if pdf uses an earlier PDF version
// than earliest.  This is used to guard features which are only valid in
// some PDF versions, such as transparency groups or certain annotation
// types.
func CheckVersion(pdf interface{ GetMeta() *MetaInfo }, operation string, earliest Version) error {
	if GetVersion(pdf) < earliest {
		return &VersionError{Operation: operation, Earliest: earliest}
	}
	return nil
}

// Errorf creates an [Error] using the same formatting rules as
// [fmt.Errorf], but without support for the %w verb.
func Errorf(format string, args ...any) error {
	return Error(fmt.Sprintf(format, args...))
}

// FilterError indicates that a stream filter could not encode or decode
// its payload: an unsupported filter name, an unsupported predictor, a
// malformed encoded payload, or (for ASCIIHexDecode) a missing EOD
// marker.
type FilterError struct {
	Filter Name
	Err    error
}

func (err *FilterError) Error() string {
	if err.Filter == "" {
		return "filter error: " + err.Err.Error()
	}
	return fmt.Sprintf("filter %s: %s", err.Filter, err.Err)
}

func (err *FilterError) Unwrap() error {
	return err.Err
}

// PermissionError indicates an attempt to read pages or stream content
// from a document while it is locked, or to write content the document
// permissions do not allow.
type PermissionError struct {
	Operation string
}

func (err *PermissionError) Error() string {
	return err.Operation + ": permission denied"
}

// ResolutionError indicates that resolving a reference failed: the
// target is missing, a reference cycle was detected, or a compressed
// cross-reference pointer was invalid.
type ResolutionError struct {
	Ref Reference
	Err error
}

func (err *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %s", err.Ref, err.Err)
}

func (err *ResolutionError) Unwrap() error {
	return err.Err
}
