package llm

import (
	"regexp"
	"strconv"
	"strings"
)

// NoCodePlagiarismText は実装コードが見つからない場合の類似度チェック結果です
const NoCodePlagiarismText = "No implementation code found to analyze for plagiarism."

// 応答からスコアを探すパターン。先にあるものほど優先されます
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)PLAGIARISM SCORE:\s*(\d{1,3})\s*%`),
	regexp.MustCompile(`(?i)Score:\s*(\d{1,3})\s*%`),
	regexp.MustCompile(`(?i)(\d{1,3})\s*%\s*plagiarism`),
	regexp.MustCompile(`(?i)plagiarism.*?(\d{1,3})\s*%`),
	regexp.MustCompile(`(\d{1,3})\s*%`),
}

// スコアが書かれていない場合のキーワード推定。上から順に判定します
var scoreKeywords = []struct {
	words []string
	score int
}{
	{words: []string{"no plagiarism", "original", "unique", "not copied"}, score: 15},
	{words: []string{"low", "minimal", "slight"}, score: 25},
	{words: []string{"moderate", "some", "partial"}, score: 50},
	{words: []string{"high", "likely", "probable"}, score: 75},
	{words: []string{"copied", "plagiarized", "stolen"}, score: 90},
}

// ExtractPlagiarismScore はLLMの応答から 0〜100 の類似度スコアを取り出します
// 各パターンの最初の一致が範囲外なら次のパターンへ進み、どれも使えなければキーワードから推定します
func ExtractPlagiarismScore(text string) int {
	for _, re := range scorePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if score, err := strconv.Atoi(m[1]); err == nil && score >= 0 && score <= 100 {
			return score
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range scoreKeywords {
		for _, w := range kw.words {
			if strings.Contains(lower, w) {
				return kw.score
			}
		}
	}
	return 0
}
