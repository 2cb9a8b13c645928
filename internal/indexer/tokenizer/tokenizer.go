// Package tokenizer turns raw, possibly HTML-bearing text into normalised
// index terms. The analysis pipeline strips markup and punctuation, segments
// the remainder (CJK-aware with gse), lower-cases and drops stop words.
package tokenizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/config"
)

// Tokenizer produces index terms from text. Terms keep the order in which
// they appear.
type Tokenizer interface {
	Analyze(text string) []string
}

var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by",
	"can", "for", "from", "have", "if", "in", "is",
	"it", "may", "not", "of", "on", "or", "tbd",
	"that", "the", "this", "to", "us", "we", "when",
	"will", "with", "yet", "you", "your",
	"的", "了", "和", "着", "与",
}

// Config is the immutable analysis configuration shared by tokenizers. Build
// it once with DefaultConfig and hand it to constructors.
type Config struct {
	stopWords    map[string]struct{}
	tagPattern   *regexp.Regexp
	punctPattern *regexp.Regexp
}

func DefaultConfig() Config {
	stop := make(map[string]struct{}, len(defaultStopWords))
	for _, w := range defaultStopWords {
		stop[w] = struct{}{}
	}
	return Config{
		stopWords:    stop,
		tagPattern:   regexp.MustCompile(`<[^>]*>`),
		punctPattern: regexp.MustCompile(`\p{P}`),
	}
}

// WithStopWords returns a copy of c with additional stop words. Words are
// lower-cased to match analysed tokens.
func (c Config) WithStopWords(words ...string) Config {
	stop := make(map[string]struct{}, len(c.stopWords)+len(words))
	for w := range c.stopWords {
		stop[w] = struct{}{}
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			stop[w] = struct{}{}
		}
	}
	c.stopWords = stop
	return c
}

func (c Config) IsStopWord(token string) bool {
	_, ok := c.stopWords[token]
	return ok
}

// clean replaces markup and punctuation with spaces.
func (c Config) clean(text string) string {
	text = c.tagPattern.ReplaceAllString(text, " ")
	return c.punctPattern.ReplaceAllString(text, " ")
}

// normalize lower-cases raw segments and drops empties and stop words.
func (c Config) normalize(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, token := range raw {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" || c.IsStopWord(token) {
			continue
		}
		result = append(result, token)
	}
	return result
}

// SimpleTokenizer splits on whitespace only. It does not segment CJK runs.
type SimpleTokenizer struct {
	cfg Config
}

func NewSimpleTokenizer(cfg Config) *SimpleTokenizer {
	return &SimpleTokenizer{cfg: cfg}
}

func (s *SimpleTokenizer) Analyze(text string) []string {
	return s.cfg.normalize(strings.Fields(s.cfg.clean(text)))
}

// New builds the tokenizer named by kind ("gse" or "simple").
func New(kind string, cfg Config, dictPaths []string) (Tokenizer, error) {
	switch kind {
	case "", "gse":
		return NewGseTokenizer(cfg, dictPaths...)
	case "simple":
		return NewSimpleTokenizer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", kind)
	}
}

// FromConfig builds the configured tokenizer with the default stop words plus
// any extra ones.
func FromConfig(cfg config.FulltextConfig) (Tokenizer, error) {
	return New(cfg.Tokenizer, DefaultConfig().WithStopWords(cfg.ExtraStopWords...), cfg.DictPaths)
}
