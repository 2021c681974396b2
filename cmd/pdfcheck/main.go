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

// Command pdfcheck prints a short summary of a PDF file: its version,
// whether the cross-reference table is a classic table or a
// cross-reference stream, its encryption status, and its page count.
package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"pdfnaut.dev/go/cos"
	"pdfnaut.dev/go/cos/pagelist"
)

func main() {
	passwdArg := flag.String("p", "", "password to try first")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pdfcheck [-p password] file.pdf")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *passwdArg); err != nil {
		fmt.Fprintln(os.Stderr, "pdfcheck:", err)
		os.Exit(1)
	}
}

func run(fname, passwdArg string) error {
	tryPasswd := func(_ []byte, try int) string {
		if passwdArg != "" && try == 0 {
			return passwdArg
		}
		if try > 0 && !term.IsTerminal(syscall.Stdin) {
			// Beyond the -p guess, only prompt when we have a real
			// terminal to read from.
			return ""
		}
		fmt.Fprint(os.Stderr, "password: ")
		passwd, err := term.ReadPassword(syscall.Stdin)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return ""
		}
		return string(passwd)
	}

	r, err := pdf.Open(fname, &pdf.ReaderOptions{ReadPassword: tryPasswd})
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Printf("version:    %s\n", r.Version)

	xrefKind := "table"
	if r.Trailer["Type"] == pdf.Name("XRef") {
		xrefKind = "stream"
	}
	fmt.Printf("xref kind:  %s\n", xrefKind)

	encrypted := r.Trailer["Encrypt"] != nil
	fmt.Printf("encrypted:  %t\n", encrypted)
	if encrypted {
		ownerErr := r.AuthenticateOwner()
		userErr := r.AuthenticateUser()
		switch {
		case ownerErr == nil:
			fmt.Println("authenticated as: owner")
		case userErr == nil:
			fmt.Println("authenticated as: user")
		default:
			fmt.Println("authenticated as: (password rejected)")
		}
	}

	if r.Catalog == nil || r.Catalog.Pages == 0 {
		fmt.Println("pages:      (no page tree)")
		return nil
	}
	n := 0
	err = pagelist.Walk(r, r.Catalog.Pages, func(pdf.Reference, pdf.Dict) error {
		n++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("pages:      %d\n", n)

	return nil
}
