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

// Package pagelist provides indexed, mutable access to the pages of a
// PDF document, without requiring the caller to walk the page tree by
// hand.
package pagelist

import (
	"errors"
	"fmt"

	"pdfnaut.dev/go/cos"
)

// Store is the subset of document access a [List] needs: resolving
// indirect objects, writing new or changed ones, and allocating fresh
// object numbers. [pdf.Data] satisfies this interface.
type Store interface {
	pdf.Getter
	Set(ref pdf.Reference, obj pdf.Object) error
	Alloc() pdf.Reference
}

// ErrIndexRange is returned by [List] methods when the given index does
// not name an existing page.
var ErrIndexRange = errors.New("pagelist: index out of range")

// List gives indexed access to the pages of a document's page tree,
// rooted at the dictionary named by the document catalog's /Pages
// entry. A List mutates the page tree in place: inserting, deleting or
// replacing a page updates the /Kids array and /Count entries of every
// affected ancestor so that the tree invariants continue to hold.
type List struct {
	store Store
	root  pdf.Reference
}

// New returns a [List] over the page tree rooted at root.
func New(store Store, root pdf.Reference) (*List, error) {
	if _, err := getTreeNode(store, root); err != nil {
		return nil, err
	}
	return &List{store: store, root: root}, nil
}

// Len returns the total number of pages in the tree.
func (l *List) Len() (int, error) {
	root, err := getTreeNode(l.store, l.root)
	if err != nil {
		return 0, err
	}
	count, err := pdf.GetInt(l.store, root["Count"])
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Get returns the reference and dictionary of the page at the given
// logical index, counting leaf Page nodes in document order starting
// at 0.
func (l *List) Get(index int) (pdf.Reference, pdf.Dict, error) {
	if index < 0 {
		return 0, nil, ErrIndexRange
	}

	root, err := getTreeNode(l.store, l.root)
	if err != nil {
		return 0, nil, err
	}
	loc, _, err := findByIndex(l.store, root, l.root, index)
	if err != nil {
		return 0, nil, err
	}
	if loc == nil {
		return 0, nil, ErrIndexRange
	}

	kids, err := pdf.GetArray(l.store, loc.node["Kids"])
	if err != nil {
		return 0, nil, err
	}
	ref, ok := kids[loc.kidIndex].(pdf.Reference)
	if !ok {
		return 0, nil, fmt.Errorf("pagelist: kid %d is not an indirect reference", loc.kidIndex)
	}
	page, err := pdf.GetDict(l.store, ref)
	if err != nil {
		return 0, nil, err
	}
	return ref, page, nil
}

// Append adds page as the last page of the document and returns its
// new reference.
func (l *List) Append(page pdf.Dict) (pdf.Reference, error) {
	n, err := l.Len()
	if err != nil {
		return 0, err
	}
	return l.Insert(n, page)
}

// Insert adds page at logical index, shifting every following page one
// position later. index may equal the current page count, which
// appends the page.
func (l *List) Insert(index int, page pdf.Dict) (pdf.Reference, error) {
	if index < 0 {
		return 0, ErrIndexRange
	}
	n, err := l.Len()
	if err != nil {
		return 0, err
	}
	if index > n {
		return 0, ErrIndexRange
	}

	root, err := getTreeNode(l.store, l.root)
	if err != nil {
		return 0, err
	}

	var parentNode pdf.Dict
	var parentRef pdf.Reference
	var kidIndex int
	if n > 0 {
		loc, _, err := findByIndex(l.store, root, l.root, index)
		if err != nil {
			return 0, err
		}
		if loc != nil {
			parentNode, parentRef, kidIndex = loc.node, loc.ref, loc.kidIndex
		}
	}
	if parentNode == nil {
		// The insertion point falls at or past the end of the tree: grow
		// the root node directly, matching the document's existing
		// (possibly unbalanced) structure rather than rebalancing it.
		rootKids, err := pdf.GetArray(l.store, root["Kids"])
		if err != nil {
			return 0, err
		}
		parentNode, parentRef, kidIndex = root, l.root, len(rootKids)
	}

	pageCopy := make(pdf.Dict, len(page)+1)
	for k, v := range page {
		pageCopy[k] = v
	}
	pageCopy["Parent"] = parentRef

	ref := l.store.Alloc()
	if err := l.store.Set(ref, pageCopy); err != nil {
		return 0, err
	}

	kids, err := pdf.GetArray(l.store, parentNode["Kids"])
	if err != nil {
		return 0, err
	}
	newKids := make(pdf.Array, 0, len(kids)+1)
	newKids = append(newKids, kids[:kidIndex]...)
	newKids = append(newKids, ref)
	newKids = append(newKids, kids[kidIndex:]...)
	parentNode["Kids"] = newKids

	if err := l.bumpCount(parentRef, parentNode, 1); err != nil {
		return 0, err
	}

	return ref, nil
}

// Delete removes the page at the given logical index. The indirect
// object for the removed page is deleted from the store; resources it
// referenced (fonts, images, ...) are left untouched, since they may be
// shared with other pages.
func (l *List) Delete(index int) error {
	if index < 0 {
		return ErrIndexRange
	}

	root, err := getTreeNode(l.store, l.root)
	if err != nil {
		return err
	}
	loc, _, err := findByIndex(l.store, root, l.root, index)
	if err != nil {
		return err
	}
	if loc == nil {
		return ErrIndexRange
	}

	kids, err := pdf.GetArray(l.store, loc.node["Kids"])
	if err != nil {
		return err
	}
	pageRef, _ := kids[loc.kidIndex].(pdf.Reference)

	newKids := make(pdf.Array, 0, len(kids)-1)
	newKids = append(newKids, kids[:loc.kidIndex]...)
	newKids = append(newKids, kids[loc.kidIndex+1:]...)
	loc.node["Kids"] = newKids

	if err := l.bumpCount(loc.ref, loc.node, -1); err != nil {
		return err
	}

	if pageRef != 0 {
		if err := l.store.Set(pageRef, nil); err != nil {
			return err
		}
	}
	return nil
}

// Set replaces the page at the given logical index with page, which is
// copied into the store under a fresh reference. The replaced page's
// indirect object is deleted.
func (l *List) Set(index int, page pdf.Dict) error {
	if index < 0 {
		return ErrIndexRange
	}

	root, err := getTreeNode(l.store, l.root)
	if err != nil {
		return err
	}
	loc, _, err := findByIndex(l.store, root, l.root, index)
	if err != nil {
		return err
	}
	if loc == nil {
		return ErrIndexRange
	}

	kids, err := pdf.GetArray(l.store, loc.node["Kids"])
	if err != nil {
		return err
	}
	oldRef, _ := kids[loc.kidIndex].(pdf.Reference)

	pageCopy := make(pdf.Dict, len(page)+1)
	for k, v := range page {
		pageCopy[k] = v
	}
	pageCopy["Parent"] = loc.ref

	newRef := l.store.Alloc()
	if err := l.store.Set(newRef, pageCopy); err != nil {
		return err
	}

	newKids := append(pdf.Array{}, kids...)
	newKids[loc.kidIndex] = newRef
	loc.node["Kids"] = newKids

	if oldRef != 0 {
		if err := l.store.Set(oldRef, nil); err != nil {
			return err
		}
	}
	return nil
}

// bumpCount adjusts /Count by delta on node (whose reference is ref)
// and on every ancestor reachable via /Parent.
func (l *List) bumpCount(ref pdf.Reference, node pdf.Dict, delta int) error {
	for {
		count, err := pdf.GetInt(l.store, node["Count"])
		if err != nil {
			return err
		}
		node["Count"] = count + pdf.Integer(delta)
		if err := l.store.Set(ref, node); err != nil {
			return err
		}

		parentObj, ok := node["Parent"]
		if !ok || parentObj == nil {
			return nil
		}
		parentRef, ok := parentObj.(pdf.Reference)
		if !ok {
			return nil
		}
		parent, err := pdf.GetDict(l.store, parentRef)
		if err != nil {
			return err
		}
		ref, node = parentRef, parent
	}
}

// treeLoc names the immediate page-tree node that contains a leaf, the
// node's own reference, and the leaf's position within the node's
// /Kids array.
type treeLoc struct {
	node     pdf.Dict
	ref      pdf.Reference
	kidIndex int
}

// findByIndex performs a depth-first walk of node's subtree, looking
// for the leaf Page at logical position index (counting leaves already
// visited). It returns the location of that leaf, together with the
// number of leaves remaining to be subtracted by the caller if the
// index was not found in this subtree.
func findByIndex(store Store, node pdf.Dict, ref pdf.Reference, index int) (*treeLoc, int, error) {
	kids, err := pdf.GetArray(store, node["Kids"])
	if err != nil {
		return nil, index, err
	}

	for i, kidObj := range kids {
		kidRef, ok := kidObj.(pdf.Reference)
		if !ok {
			continue
		}
		kid, err := pdf.GetDict(store, kidRef)
		if err != nil {
			return nil, index, err
		}

		typeName, err := pdf.GetName(store, kid["Type"])
		if err != nil {
			return nil, index, err
		}

		switch typeName {
		case "Pages":
			loc, rem, err := findByIndex(store, kid, kidRef, index)
			if err != nil {
				return nil, index, err
			}
			if loc != nil {
				return loc, rem, nil
			}
			index = rem
		case "Page":
			if index <= 0 {
				return &treeLoc{node: node, ref: ref, kidIndex: i}, index, nil
			}
			index--
		}
	}

	return nil, index, nil
}

// getTreeNode resolves ref and checks that it names a dictionary; its
// /Type entry is not checked.
func getTreeNode(store Store, ref pdf.Reference) (pdf.Dict, error) {
	node, err := pdf.GetDict(store, ref)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, errors.New("pagelist: document has no page tree")
	}
	return node, nil
}

// Walk performs a depth-first traversal of the page tree rooted at
// root, calling visit once for every leaf Page dictionary in document
// order. Traversal stops at the first error returned by visit.
func Walk(store pdf.Getter, root pdf.Reference, visit func(ref pdf.Reference, page pdf.Dict) error) error {
	return walk(store, root, visit)
}

func walk(store pdf.Getter, ref pdf.Reference, visit func(pdf.Reference, pdf.Dict) error) error {
	node, err := pdf.GetDict(store, ref)
	if err != nil {
		return err
	}
	kids, err := pdf.GetArray(store, node["Kids"])
	if err != nil {
		return err
	}

	for _, kidObj := range kids {
		kidRef, ok := kidObj.(pdf.Reference)
		if !ok {
			continue
		}
		kid, err := pdf.GetDict(store, kidRef)
		if err != nil {
			return err
		}
		typeName, err := pdf.GetName(store, kid["Type"])
		if err != nil {
			return err
		}

		switch typeName {
		case "Pages":
			if err := walk(store, kidRef, visit); err != nil {
				return err
			}
		case "Page":
			if err := visit(kidRef, kid); err != nil {
				return err
			}
		}
	}
	return nil
}
