package model

import "fmt"

// Side is one side of an order book.
type Side string

const (
	SideAsk Side = "ask"
	SideBid Side = "bid"
)

// MalformedPairError is returned when exchange metadata breaks base+quote == symbol.
type MalformedPairError struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
}

func (e *MalformedPairError) Error() string {
	return fmt.Sprintf("malformed pair %q: base %q + quote %q does not match symbol", e.Symbol, e.BaseAsset, e.QuoteAsset)
}

// QuoteUnavailableError means the book side needed for a leg is empty.
type QuoteUnavailableError struct {
	Symbol string
	Side   Side
}

func (e *QuoteUnavailableError) Error() string {
	return fmt.Sprintf("no %s available for %s", e.Side, e.Symbol)
}

// TransportError wraps a network or HTTP failure talking to the exchange.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError wraps a response the exchange sent that could not be decoded.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string { return "parse: " + e.Op + ": " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }
