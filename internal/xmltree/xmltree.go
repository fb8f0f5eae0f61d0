// Package xmltree provides the tolerant parse/canonicalize/serialize layer
// the pump runs every inbound and outbound message through. It works on a
// generic element tree rather than typed structs, since the pump's envelope
// and payload shapes are not known until the routing and schema stages have
// run.
package xmltree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Element is a generic, ordered XML element tree. Unlike encoding/xml's
// struct-tag decoding, Element keeps every child and attribute so that
// later pipeline stages can inspect payload shape before any schema is
// known.
type Element struct {
	Space    string
	Name     string
	Attrs    []xml.Attr
	Children []*Element
	Text     string
}

// LocalName returns the element's tag without its namespace prefix, the
// form the routing key and payload-extraction steps key off of.
func (e *Element) LocalName() string {
	return e.Name
}

// QName returns the namespace-qualified name as encoding/xml would report
// it ({space}local).
func (e *Element) QName() xml.Name {
	return xml.Name{Space: e.Space, Local: e.Name}
}

// Child returns the first direct child with the given local name and
// namespace, or nil. An empty space matches any namespace.
func (e *Element) Child(space, local string) *Element {
	for _, c := range e.Children {
		if c.Name == local && (space == "" || c.Space == space) {
			return c
		}
	}
	return nil
}

// ChildrenExcept returns the direct children whose (space, local) pair is
// not present in the exclude set. The payload extraction step uses this to
// find payload candidates among the meta siblings.
func (e *Element) ChildrenExcept(exclude map[xml.Name]bool) []*Element {
	out := make([]*Element, 0, len(e.Children))
	for _, c := range e.Children {
		if !exclude[c.QName()] {
			out = append(out, c)
		}
	}
	return out
}

// Attr returns the value of the named attribute (any namespace) and
// whether it was present.
func (e *Element) Attr(local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// Parse reads a single XML document into an Element tree. It tolerates the
// recoverable malformations a message pump sees in practice -- a stray BOM,
// trailing garbage after the root element's close tag, and undeclared but
// otherwise well-formed namespace prefixes -- by using an xml.Decoder in
// non-strict mode and stopping at the first fully-closed root element
// rather than demanding a pristine end-of-stream.
func Parse(data []byte) (*Element, error) {
	data = stripBOM(data)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var root *Element
	var stack []*Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmltree: parse: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Space: t.Name.Space, Name: t.Name.Local, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				root = cur
			}
		case xml.CharData:
			if len(stack) > 0 {
				cur := stack[len(stack)-1]
				if s := strings.TrimSpace(string(t)); s != "" {
					cur.Text += s
				}
			}
		}
		if root != nil {
			// Root element fully closed; ignore anything trailing.
			break
		}
	}

	if root == nil {
		return nil, fmt.Errorf("xmltree: parse: no root element found")
	}
	return root, nil
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

// Canonicalize rewrites the tree in place into a deterministic form:
// attributes sorted by namespace then local name, and no dependency on
// prefix spelling (only the resolved namespace URI and local name are
// meaningful downstream). It mirrors lxml's canonicalization step closely
// enough for the routing key and schema stages, which only ever compare
// resolved names, never raw prefixes.
func Canonicalize(el *Element) {
	sort.SliceStable(el.Attrs, func(i, j int) bool {
		if el.Attrs[i].Name.Space != el.Attrs[j].Name.Space {
			return el.Attrs[i].Name.Space < el.Attrs[j].Name.Space
		}
		return el.Attrs[i].Name.Local < el.Attrs[j].Name.Local
	})
	for _, c := range el.Children {
		Canonicalize(c)
	}
}

// Serialize writes the tree back out as XML. Every element with a
// namespace declares it as its default namespace (xmlns="..."), and an
// unnamespaced child of a namespaced parent resets it with xmlns="".
func Serialize(el *Element) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := writeElement(enc, el, "__unset__"); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeElement encodes el and its descendants. parentSpace is the
// namespace URI in scope from the enclosing element ("__unset__" for the
// document root, meaning no scope yet). encoding/xml's Encoder only ever
// emits an explicit xmlns attribute when a Space is non-empty; left to
// itself it never resets the default namespace back to "" for a child
// with an empty Space nested under a namespaced parent, so a
// namespace-aware reader would wrongly inherit the parent's namespace
// onto that child. Payload elements here are routinely unnamespaced
// while the enclosing <message> carries the envelope namespace, so that
// inheritance would silently swallow the very separation §6.1 requires
// -- we emit xmlns="" explicitly whenever a child's Space differs from
// what's already in scope, including the empty case.
func writeElement(enc *xml.Encoder, el *Element, parentSpace string) error {
	start := xml.StartElement{
		Name: xml.Name{Space: el.Space, Local: el.Name},
		Attr: el.Attrs,
	}
	if el.Space == "" && parentSpace != "__unset__" && parentSpace != "" {
		start.Attr = append([]xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: ""}}, start.Attr...)
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if el.Text != "" {
		if err := enc.EncodeToken(xml.CharData([]byte(el.Text))); err != nil {
			return err
		}
	}
	for _, c := range el.Children {
		if err := writeElement(enc, c, el.Space); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

// Clone returns a deep copy of the element tree.
func Clone(el *Element) *Element {
	if el == nil {
		return nil
	}
	cp := &Element{
		Space: el.Space,
		Name:  el.Name,
		Text:  el.Text,
		Attrs: append([]xml.Attr(nil), el.Attrs...),
	}
	for _, c := range el.Children {
		cp.Children = append(cp.Children, Clone(c))
	}
	return cp
}
