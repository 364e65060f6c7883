package einvoice

import "strings"

// KnownPrefixes are the namespace prefixes UBL issuers have historically
// used, in the order FindFirst tries them.
var KnownPrefixes = []string{"cac", "cbc", "ext", "sts", "ds"}

// FindFirst returns the first descendant of root whose local name matches.
//
// The search order is fixed: a direct tag lookup when the tree supports it,
// then each of KnownPrefixes as "prefix:localName", then a pre-order scan
// of the whole subtree comparing prefix-stripped names. When the same local
// name appears in two namespaces the first match wins.
func FindFirst(root Node, name string) (Node, bool) {
	if root == nil {
		return nil, false
	}
	if finder, ok := root.(TagFinder); ok {
		if n, ok := finder.FindTag(name); ok {
			return n, true
		}
		// etree already matches unqualified tags in any namespace, so this
		// tier only answers for finders that compare qualified names.
		for _, prefix := range KnownPrefixes {
			if n, ok := finder.FindTag(prefix + ":" + name); ok {
				return n, true
			}
		}
	}
	return scanFirst(root, name)
}

// FindAll returns every descendant of root whose local name matches, in
// document order.
func FindAll(root Node, name string) []Node {
	var found []Node
	if root == nil {
		return found
	}
	var walk func(n Node)
	walk = func(n Node) {
		for _, c := range n.Children() {
			if localName(c.LocalName()) == name {
				found = append(found, c)
			}
			walk(c)
		}
	}
	walk(root)
	return found
}

// Child returns the first direct child of n with the given local name
func Child(n Node, name string) (Node, bool) {
	if n == nil {
		return nil, false
	}
	for _, c := range n.Children() {
		if localName(c.LocalName()) == name {
			return c, true
		}
	}
	return nil, false
}

func scanFirst(root Node, name string) (Node, bool) {
	for _, c := range root.Children() {
		if localName(c.LocalName()) == name {
			return c, true
		}
		if n, ok := scanFirst(c, name); ok {
			return n, true
		}
	}
	return nil, false
}

// findText follows path from n, using FindFirst for each step, and returns
// the trimmed text of the last node. Empty text counts as not found.
func findText(n Node, path ...string) (string, bool) {
	cur := n
	for _, name := range path {
		next, ok := FindFirst(cur, name)
		if !ok {
			return "", false
		}
		cur = next
	}
	text := strings.TrimSpace(cur.Text())
	return text, text != ""
}

// childText is findText restricted to direct children
func childText(n Node, name string) (string, bool) {
	c, ok := Child(n, name)
	if !ok {
		return "", false
	}
	text := strings.TrimSpace(c.Text())
	return text, text != ""
}

// firstOf returns the first non-empty result of the given lookups
func firstOf(lookups ...func() (string, bool)) string {
	for _, lookup := range lookups {
		if v, ok := lookup(); ok {
			return v
		}
	}
	return ""
}
