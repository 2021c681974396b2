// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2023  Jochen Voss <voss@seehuhn.de>
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

import "fmt"

// ParseVersionError is returned by [ParseVersion] when given a string that
// does not name one of the known PDF versions.
type ParseVersionError struct {
	Input string
}

func (err *ParseVersionError) Error() string {
	return fmt.Sprintf("pdf: %q is not a valid PDF version", err.Input)
}

// Version represents a PDF version number, as found in the file header
// or in the document catalog's /Version entry.
type Version int

// The PDF versions currently understood by this package.
const (
	V1_0 Version = iota
	V1_1
	V1_2
	V1_3
	V1_4
	V1_5
	V1_6
	V1_7
	V2_0

	tooHighVersion // sentinel, one past the last valid version
)

var versionStrings = [...]string{
	V1_0: "1.0",
	V1_1: "1.1",
	V1_2: "1.2",
	V1_3: "1.3",
	V1_4: "1.4",
	V1_5: "1.5",
	V1_6: "1.6",
	V1_7: "1.7",
	V2_0: "2.0",
}

// ParseVersion converts a version string like "1.7" into a [Version].
func ParseVersion(s string) (Version, error) {
	for v, vs := range versionStrings {
		if vs == s {
			return Version(v), nil
		}
	}
	return 0, &ParseVersionError{Input: s}
}

// ToString formats v as a PDF version string, e.g. "1.7".
func (v Version) ToString() (string, error) {
	if v < V1_0 || v >= tooHighVersion {
		return "", errVersion
	}
	return versionStrings[v], nil
}

// String implements [fmt.Stringer]. Unlike [Version.ToString], it never
// fails: out of range versions are rendered as "invalid version".
func (v Version) String() string {
	s, err := v.ToString()
	if err != nil {
		return "invalid version"
	}
	return s
}

func (v Version) isValid() bool {
	return v >= V1_0 && v < tooHighVersion
}
