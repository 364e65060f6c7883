package einvoice

import "strings"

// MaxEnvelopeDepth is how many envelopes Parse will unwrap before giving up
const MaxEnvelopeDepth = 1

// envelopeRoot is the local name of the signing envelope that carries an
// invoice as embedded text.
const envelopeRoot = "AttachedDocument"

// envelopePath is the fixed child path from the envelope root to the
// embedded document.
var envelopePath = []string{"Attachment", "ExternalReference", "Description"}

// DetectEnvelope reports whether root is a signing envelope
func DetectEnvelope(root Node) bool {
	return root != nil && localName(root.LocalName()) == envelopeRoot
}

// Unwrap returns the embedded document text of an envelope, if the payload
// at the fixed path looks like a complete XML document.
func Unwrap(root Node) (string, bool) {
	cur := root
	for _, name := range envelopePath {
		next, ok := Child(cur, name)
		if !ok {
			return "", false
		}
		cur = next
	}
	payload := strings.TrimSpace(cur.Text())
	if !strings.HasPrefix(payload, "<") || !strings.HasSuffix(payload, ">") {
		return "", false
	}
	return payload, true
}
