// Package einvoice extracts a normalized invoice record from UBL-family
// e-invoicing XML documents, regardless of how the issuing software dressed
// the document in namespace prefixes.
package einvoice

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// Node is the read-only view of an XML element the extractor works with
type Node interface {
	// LocalName returns the tag name without any namespace prefix
	LocalName() string
	// Text returns the character data directly inside the element
	Text() string
	// Children returns the child elements in document order
	Children() []Node
	// Attr returns the value of the attribute with the given local name
	Attr(localName string) (string, bool)
}

// TagFinder is implemented by trees that can look up a descendant by tag
// without a full scan. The tag may be qualified as "prefix:local"; an
// unqualified tag matches any namespace.
type TagFinder interface {
	FindTag(tag string) (Node, bool)
}

// element adapts an etree element to Node and TagFinder
type element struct {
	el *etree.Element
}

// ReadTree parses data into a navigable tree and returns its root element.
// A declared non-UTF-8 encoding is decoded.
func ReadTree(data []byte) (Node, error) {
	return readTree(data, charset.NewReaderLabel)
}

// readEmbedded parses a document that was carried as text inside another
// one. Its bytes are already UTF-8 whatever its declaration says.
func readEmbedded(data []byte) (Node, error) {
	return readTree(data, passThroughCharset)
}

func passThroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

func readTree(data []byte, charsetReader func(string, io.Reader) (io.Reader, error)) (Node, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charsetReader,
	}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("reading xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	return element{el: root}, nil
}

func (e element) LocalName() string {
	return localName(e.el.Tag)
}

func (e element) Text() string {
	var b strings.Builder
	for _, tok := range e.el.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			b.WriteString(cd.Data)
		}
	}
	return b.String()
}

func (e element) Children() []Node {
	children := e.el.ChildElements()
	nodes := make([]Node, 0, len(children))
	for _, c := range children {
		nodes = append(nodes, element{el: c})
	}
	return nodes
}

func (e element) Attr(name string) (string, bool) {
	for _, a := range e.el.Attr {
		if localName(a.Key) == name {
			return a.Value, true
		}
	}
	return "", false
}

// FindTag returns the first descendant in document order matching tag.
// An unqualified tag matches any namespace prefix.
func (e element) FindTag(tag string) (Node, bool) {
	space, local := "", tag
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		space, local = tag[:i], tag[i+1:]
	}
	if found := findElement(e.el, space, local); found != nil {
		return element{el: found}, true
	}
	return nil, false
}

func findElement(el *etree.Element, space, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == local && (space == "" || c.Space == space) {
			return c
		}
		if found := findElement(c, space, local); found != nil {
			return found
		}
	}
	return nil
}

// localName strips a "prefix:" qualifier from a tag name
func localName(tag string) string {
	if i := strings.LastIndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

// countNodes returns the number of elements in the subtree rooted at n,
// stopping early once limit is exceeded.
func countNodes(n Node, limit int) int {
	count := 0
	stack := []Node{n}
	for len(stack) > 0 && count <= limit {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, top.Children()...)
	}
	return count
}
