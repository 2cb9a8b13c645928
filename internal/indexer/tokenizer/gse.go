package tokenizer

import (
	"fmt"

	"github.com/go-ego/gse"
)

// GseTokenizer segments text with gse in search mode, which also emits the
// shorter words contained in long CJK compounds.
type GseTokenizer struct {
	seg gse.Segmenter
	cfg Config
}

// NewGseTokenizer loads the given dictionaries, or gse's bundled ones when
// none are given.
func NewGseTokenizer(cfg Config, dictPaths ...string) (*GseTokenizer, error) {
	g := &GseTokenizer{cfg: cfg}
	if err := g.seg.LoadDict(dictPaths...); err != nil {
		return nil, fmt.Errorf("loading gse dictionary: %w", err)
	}
	return g, nil
}

// Cut segments text without any normalisation.
func (g *GseTokenizer) Cut(text string) []string {
	return g.seg.CutSearch(text, true)
}

func (g *GseTokenizer) Analyze(text string) []string {
	return g.cfg.normalize(g.Cut(g.cfg.clean(text)))
}
