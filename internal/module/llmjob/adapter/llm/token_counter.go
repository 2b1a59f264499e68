package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter はトークン数のカウントと切り詰めを行う
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter は新しいTokenCounterを作成する
// cl100k_baseエンコーディングを使用する
func NewTokenCounter() (*TokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	return &TokenCounter{
		encoding: encoding,
	}, nil
}

// CountTokens はテキストのトークン数をカウントする
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.encoding == nil {
		return EstimateTokens(text)
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// Truncate はテキストを先頭から maxTokens トークン以内に切り詰める
// maxTokens が 0 以下の場合はそのまま返す
func (tc *TokenCounter) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}

	if tc == nil || tc.encoding == nil {
		// エンコーディングがない場合は文字数で近似する
		limit := maxTokens * 3
		r := []rune(text)
		if len(r) <= limit {
			return text, false
		}
		return string(r[:limit]), true
	}

	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}
	return tc.encoding.Decode(tokens[:maxTokens]), true
}

// EstimateTokens はテキストの推定トークン数を返す
// 平均的な値として3文字で1トークンとする
func EstimateTokens(text string) int {
	return len([]rune(text)) / 3
}
