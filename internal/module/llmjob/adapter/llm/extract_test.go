package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractImplementation(t *testing.T) {
	t.Run("Implementation見出し配下のブロックを優先する", func(t *testing.T) {
		content := "# Setup\n```python\nimport os\n```\n\n## Implementation\nHere is my solution.\n```python\ndef solve(xs):\n    return sorted(xs)\n```\n\n# Notes\n```python\nprint('notes')\n```\n"

		got := ExtractImplementation(content)

		assert.Equal(t, "section", got.Source)
		assert.Equal(t, "def solve(xs):\n    return sorted(xs)", got.Code)
		assert.Equal(t, "Python", got.Language)
	})

	t.Run("フェンス内の#行は見出しとして扱わない", func(t *testing.T) {
		content := "# Solution\n```python\n# implementation detail\nx = 1\n```\n"

		got := ExtractImplementation(content)

		assert.Equal(t, "section", got.Source)
		assert.Equal(t, "# implementation detail\nx = 1", got.Code)
	})

	t.Run("見出しがなければ50文字を超えるブロックだけを使う", func(t *testing.T) {
		long := "def fibonacci(n):\n    if n < 2:\n        return n\n    return fibonacci(n - 1) + fibonacci(n - 2)\n"
		content := "Intro\n```\nx = 1\n```\nMain part\n```python\n" + long + "```\n"

		got := ExtractImplementation(content)

		assert.Equal(t, "blocks", got.Source)
		assert.Equal(t, "def fibonacci(n):\n    if n < 2:\n        return n\n    return fibonacci(n - 1) + fibonacci(n - 2)", got.Code)
		assert.Equal(t, "Python", got.Language)
	})

	t.Run("短いブロックしかなければすべて連結する", func(t *testing.T) {
		content := "```\nx = 1\n```\ntext\n```\ny = 2\n```\n"

		got := ExtractImplementation(content)

		assert.Equal(t, "blocks", got.Source)
		assert.Equal(t, "x = 1\n\n\ny = 2", got.Code)
	})

	t.Run("フェンスがなければコードらしい行を集める", func(t *testing.T) {
		content := "My answer is below\n\ndef add(a, b):\n    return a + b\n\nThat is all."

		got := ExtractImplementation(content)

		assert.Equal(t, "heuristic", got.Source)
		assert.Contains(t, got.Code, "def add(a, b):")
		assert.Contains(t, got.Code, "return a + b")
		assert.NotContains(t, got.Code, "That is all")
	})

	t.Run("コードがなければ空", func(t *testing.T) {
		got := ExtractImplementation("Just prose.\nNothing else here.")

		assert.Empty(t, got.Code)
		assert.Empty(t, got.Source)
	})
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "Python", DetectLanguage("x = 1", "python"))
	assert.Equal(t, "Go", DetectLanguage("package main", "golang"))
	assert.Empty(t, DetectLanguage("   ", ""))
}

func TestExtractPlagiarismScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "指定フォーマット", text: "PLAGIARISM SCORE: 35%\nANALYSIS: fine", want: 35},
		{name: "大文字小文字を区別しない", text: "plagiarism score: 12 %", want: 12},
		{name: "Score表記", text: "Overall Score: 60%", want: 60},
		{name: "後置表記", text: "I estimate 80% plagiarism here.", want: 80},
		{name: "範囲外はキーワード判定へ", text: "PLAGIARISM SCORE: 150%\nThe solution looks original.", want: 15},
		{name: "キーワード original", text: "The code looks original.", want: 15},
		{name: "キーワード moderate", text: "There is moderate overlap.", want: 50},
		{name: "キーワード copied", text: "This was copied verbatim.", want: 90},
		{name: "判定できない", text: "Nothing to say.", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPlagiarismScore(tt.text))
		})
	}
}

func TestTokenCounter_TruncateWithoutEncoding(t *testing.T) {
	var tc *TokenCounter

	text, truncated := tc.Truncate("abcdefghij", 2)
	require.True(t, truncated)
	assert.Equal(t, "abcdef", text)

	text, truncated = tc.Truncate("abc", 2)
	assert.False(t, truncated)
	assert.Equal(t, "abc", text)

	text, truncated = tc.Truncate("abcdefghij", 0)
	assert.False(t, truncated)
	assert.Equal(t, "abcdefghij", text)

	assert.Equal(t, 3, tc.CountTokens("abcdefghi"))
}
