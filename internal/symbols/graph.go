// Package symbols builds the read-only view of an exchange's tradable pairs.
package symbols

import (
	"sort"

	"triscan/internal/model"
)

// Graph maps symbols to pairs and keeps the sorted set of base assets.
// It is immutable after Build and safe for concurrent readers.
type Graph struct {
	pairs map[string]model.TradingPair
	bases []string
}

// Build validates every pair and indexes them by symbol. Duplicate symbols keep the last entry.
func Build(pairs []model.TradingPair) (*Graph, error) {
	g := &Graph{pairs: make(map[string]model.TradingPair, len(pairs))}
	for _, p := range pairs {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		g.pairs[p.Symbol] = p
	}

	seen := make(map[string]struct{})
	for _, p := range g.pairs {
		if _, ok := seen[p.BaseAsset]; ok {
			continue
		}
		seen[p.BaseAsset] = struct{}{}
		g.bases = append(g.bases, p.BaseAsset)
	}
	sort.Strings(g.bases)
	return g, nil
}

// HasSymbol reports whether the exchange lists symbol.
func (g *Graph) HasSymbol(symbol string) bool {
	_, ok := g.pairs[symbol]
	return ok
}

// Pair returns the pair listed under symbol.
func (g *Graph) Pair(symbol string) (model.TradingPair, bool) {
	p, ok := g.pairs[symbol]
	return p, ok
}

// Len returns the number of distinct symbols.
func (g *Graph) Len() int { return len(g.pairs) }

// BaseAssets returns the distinct base assets in ascending order.
func (g *Graph) BaseAssets() []string {
	out := make([]string, len(g.bases))
	copy(out, g.bases)
	return out
}

// Symbols returns every listed symbol in ascending order.
func (g *Graph) Symbols() []string {
	out := make([]string, 0, len(g.pairs))
	for s := range g.pairs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
