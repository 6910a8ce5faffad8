package tokenizer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/smallnest/ragcore"
)

// modelEncodings maps OpenAI-family model names to their tiktoken encodings.
var modelEncodings = map[string]string{
	"gpt-4o":                 "o200k_base",
	"gpt-4o-mini":            "o200k_base",
	"gpt-4-turbo":            "cl100k_base",
	"gpt-4":                  "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens exactly with the model's BPE encoding. The
// encoding is initialized lazily on first use (tiktoken may download its
// vocabulary); if initialization fails the counter falls back to the
// Estimator so context assembly keeps working offline.
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	fallback Estimator
}

// NewTiktokenCounter creates a counter for the given model name. Unknown
// models use the cl100k_base encoding.
func NewTiktokenCounter(model string) *TiktokenCounter {
	encoding, ok := modelEncodings[model]
	if !ok {
		// Longest prefix wins so dated variants like gpt-4o-2024-08-06 match
		// gpt-4o, not gpt-4.
		prefixes := make([]string, 0, len(modelEncodings))
		for prefix := range modelEncodings {
			prefixes = append(prefixes, prefix)
		}
		sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
		for _, prefix := range prefixes {
			if strings.HasPrefix(model, prefix) {
				encoding, ok = modelEncodings[prefix], true
				break
			}
		}
	}
	if !ok {
		encoding = defaultEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

var _ ragcore.TokenCounter = (*TiktokenCounter)(nil)

func (t *TiktokenCounter) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			return
		}
		t.enc = enc
	})
}

// Count returns the exact token count of text, or the len/4 estimate when
// the encoding could not be loaded.
func (t *TiktokenCounter) Count(text string) int {
	t.init()
	if t.enc == nil {
		return t.fallback.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Name identifies the encoding in use.
func (t *TiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
