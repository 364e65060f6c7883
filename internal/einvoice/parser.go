package einvoice

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultMaxBytes bounds the raw input accepted by Parse
	DefaultMaxBytes = 1 << 20
	// DefaultMaxNodes bounds the element count of a parsed tree
	DefaultMaxNodes = 20000
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Parser turns e-invoice XML into a Document. A Parser holds only its
// configuration and is safe for concurrent use.
type Parser struct {
	maxBytes   int
	maxNodes   int
	timeSource TimeSource
	log        *slog.Logger
}

// Option configures a Parser
type Option func(*Parser)

// WithMaxBytes rejects inputs larger than n bytes before parsing them
func WithMaxBytes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithMaxNodes rejects trees with more than n elements before extraction
func WithMaxNodes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxNodes = n
		}
	}
}

// WithTimeSource sets the clock used for the default issue date
func WithTimeSource(ts TimeSource) Option {
	return func(p *Parser) {
		if ts != nil {
			p.timeSource = ts
		}
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(log *slog.Logger) Option {
	return func(p *Parser) {
		if log != nil {
			p.log = log
		}
	}
}

// NewParser creates a Parser with the default limits and clock
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		maxBytes:   DefaultMaxBytes,
		maxNodes:   DefaultMaxNodes,
		timeSource: defaultTimeSource{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses data with a default Parser
func Parse(data []byte) (Document, error) {
	return NewParser().Parse(data)
}

// Parse extracts a Document from data, unwrapping at most one signing
// envelope. Failures are returned as *ParseError.
func (p *Parser) Parse(data []byte) (Document, error) {
	return p.parse(data, 0)
}

func (p *Parser) parse(data []byte, depth int) (Document, error) {
	if len(data) > p.maxBytes {
		return Document{}, newParseError(ErrDocumentTooLarge, depth,
			fmt.Errorf("%d bytes exceeds limit of %d", len(data), p.maxBytes))
	}

	read := ReadTree
	if depth > 0 {
		read = readEmbedded
	}
	root, err := read(data)
	if err != nil {
		return Document{}, newParseError(ErrMalformedInput, depth, err)
	}
	if n := countNodes(root, p.maxNodes); n > p.maxNodes {
		return Document{}, newParseError(ErrDocumentTooLarge, depth,
			fmt.Errorf("more than %d elements", p.maxNodes))
	}

	if DetectEnvelope(root) {
		if depth >= MaxEnvelopeDepth {
			return Document{}, newParseError(ErrUnsupportedNesting, depth,
				fmt.Errorf("envelope found at depth %d", depth))
		}
		if inner, ok := Unwrap(root); ok {
			p.logger().Debug("Unwrapping e-invoice envelope", "depth", depth, "payload_size", len(inner))
			return p.parse([]byte(inner), depth+1)
		}
		p.logger().Debug("Envelope has no embedded document, extracting from envelope", "depth", depth)
	}

	return p.extract(root, depth)
}

// extract runs the field extractors against root and builds the result
func (p *Parser) extract(root Node, depth int) (Document, error) {
	now := p.timeSource.Now()
	b := newBuilder(localName(root.LocalName()), now.Format(dateLayout))

	supplier, ok := extractSupplier(root)
	if !ok {
		return Document{}, newParseError(ErrMissingRequiredSection, depth,
			fmt.Errorf("no supplier party in %q document", root.LocalName()))
	}
	b.supplier(supplier)
	b.customer(extractCustomer(root))
	b.header(extractHeader(root, now))
	b.lines(extractLines(root))

	doc := b.build()
	p.logger().Debug("Parsed e-invoice",
		"kind", doc.Kind,
		"number", doc.Header.Number,
		"supplier_tax_id", doc.Supplier.TaxID,
		"lines", len(doc.LineItems),
		"depth", depth,
	)
	return doc, nil
}

func (p *Parser) logger() *slog.Logger {
	if p.log != nil {
		return p.log
	}
	return slog.Default()
}
