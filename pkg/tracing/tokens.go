package tracing

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

const DefaultEncoding = string(tokenizer.Cl100kBase)

// TokenCounter counts tokens with a tiktoken encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

func NewTokenCounter(encoding string) (*TokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "load tokenizer %q", encoding)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns 0 when text cannot be encoded.
func (c *TokenCounter) Count(text string) int {
	if c == nil || text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}
