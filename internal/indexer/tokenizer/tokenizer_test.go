package tokenizer

import (
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	gseOnce sync.Once
	gseTok  *GseTokenizer
	gseErr  error
)

func sharedGse(tb testing.TB) *GseTokenizer {
	tb.Helper()
	gseOnce.Do(func() {
		gseTok, gseErr = NewGseTokenizer(DefaultConfig())
	})
	require.NoError(tb, gseErr)
	return gseTok
}

func TestSimpleTokenizer(t *testing.T) {
	tok := NewSimpleTokenizer(DefaultConfig())
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain", "Rust Programming", []string{"rust", "programming"}},
		{"html", "<p class=\"x\">Hello <strong>world</strong></p>", []string{"hello", "world"}},
		{"punctuation", "Hello, world! How are you?", []string{"hello", "world", "how"}},
		{"stop words", "The quick brown fox is jumping", []string{"quick", "brown", "fox", "jumping"}},
		{"keeps order and repeats", "rust rust go", []string{"rust", "rust", "go"}},
		{"tag glued to text", "a<br>b", []string{"b"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Analyze(tt.input))
		})
	}
}

func TestEmptyContentYieldsNoTokens(t *testing.T) {
	tokenizers := map[string]Tokenizer{
		"simple": NewSimpleTokenizer(DefaultConfig()),
		"gse":    sharedGse(t),
	}
	for name, tok := range tokenizers {
		for _, input := range []string{"", "   ", ".,!?", "the and or", "<div></div>", "的"} {
			t.Run(name+"/"+input, func(t *testing.T) {
				assert.Empty(t, tok.Analyze(input))
			})
		}
	}
}

func TestWithStopWords(t *testing.T) {
	base := DefaultConfig()
	cfg := base.WithStopWords(" Foo ", "", "bar")

	assert.True(t, cfg.IsStopWord("foo"))
	assert.True(t, cfg.IsStopWord("bar"))
	assert.True(t, cfg.IsStopWord("the"))
	assert.False(t, base.IsStopWord("foo"), "base config must not change")

	tok := NewSimpleTokenizer(cfg)
	assert.Equal(t, []string{"baz"}, tok.Analyze("foo bar baz"))
}

func TestGseTokenizerAnalyze(t *testing.T) {
	tok := sharedGse(t)
	tests := []struct {
		name        string
		input       string
		contains    []string
		notContains []string
	}{
		{
			name:        "html tags",
			input:       "<p>Hello <strong>world</strong></p>",
			contains:    []string{"hello", "world"},
			notContains: []string{"p", "strong"},
		},
		{
			name:        "punctuation",
			input:       "Hello, world! How are you?",
			contains:    []string{"hello", "world", "how"},
			notContains: []string{",", "!", "?", "are"},
		},
		{
			name:        "lower case",
			input:       "HELLO World",
			contains:    []string{"hello", "world"},
			notContains: []string{"HELLO", "World"},
		},
		{
			name:        "chinese stop words",
			input:       "我爱自然语言处理和机器学习",
			contains:    []string{"处理"},
			notContains: []string{"和", "的"},
		},
		{
			name:     "mixed script",
			input:    "<h1>Python编程</h1>, 很有趣!",
			contains: []string{"python"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := tok.Analyze(tt.input)
			for _, want := range tt.contains {
				assert.Contains(t, tokens, want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, tokens, unwanted)
			}
			for _, token := range tokens {
				assert.Equal(t, strings.TrimSpace(token), token)
				assert.NotEmpty(t, token)
			}
		})
	}
}

func TestGseTokenizerIsDeterministic(t *testing.T) {
	tok := sharedGse(t)
	text := "全文搜索引擎 built on Redis sets 和倒排索引"
	assert.Equal(t, tok.Analyze(text), tok.Analyze(text))
}

func TestNew(t *testing.T) {
	tok, err := New("simple", DefaultConfig(), nil)
	require.NoError(t, err)
	assert.IsType(t, &SimpleTokenizer{}, tok)

	_, err = New("jieba", DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	tok, err := FromConfig(config.FulltextConfig{Tokenizer: "simple", ExtraStopWords: []string{"draft"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, tok.Analyze("Draft notes"))
}

func BenchmarkGseAnalyze(b *testing.B) {
	tok := sharedGse(b)
	text := strings.Repeat("Distributed search engines process queries across shards. 分布式搜索引擎在多个分片上处理查询。", 20)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = tok.Analyze(text)
	}
}

func BenchmarkSimpleAnalyze(b *testing.B) {
	tok := NewSimpleTokenizer(DefaultConfig())
	text := strings.Repeat("Information retrieval systems form the backbone of modern search. ", 20)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = tok.Analyze(text)
	}
}
