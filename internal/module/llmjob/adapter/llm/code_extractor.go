package llm

import (
	"regexp"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// 実装コードを探す見出し。先にあるものほど優先されます
var sectionKeywords = []string{"implementation", "code", "solution", "answer"}

// substantialBlockChars はサンプルではない本体コードとみなす最小文字数
const substantialBlockChars = 50

var (
	headingRe  = regexp.MustCompile(`^\s*#+\s*(.*)$`)
	fenceRe    = regexp.MustCompile("(?s)```(.*?)```")
	infoRe     = regexp.MustCompile(`^[\w+#.-]+$`)
	funcCallRe = regexp.MustCompile(`^[A-Za-z_]\w*\s*\(.*\)$`)
)

var codeLinePrefixes = []string{
	"def ", "class ", "import ", "from ", "if ", "for ", "while ", "try:", "except", "with ", "return ",
}

// Extraction はノートブックから取り出した実装コードです
type Extraction struct {
	Code     string
	Language string
	// Source は "section" / "blocks" / "heuristic" / "" のいずれか
	Source string
}

// ExtractImplementation はノートブック本文から実装コードを取り出します
//
// 1. Implementation / Code / Solution / Answer 見出し配下のコードブロック
// 2. 本文全体のコードブロック（50文字を超えるものがあればそれだけ）
// 3. コードらしい行の寄せ集め
func ExtractImplementation(content string) Extraction {
	for _, keyword := range sectionKeywords {
		for _, body := range sectionsWithHeading(content, keyword) {
			if blocks := codeBlocks(body); len(blocks) > 0 {
				return newExtraction(blocks, "section")
			}
		}
	}

	if blocks := codeBlocks(content); len(blocks) > 0 {
		var substantial []fencedBlock
		for _, b := range blocks {
			if len(strings.TrimSpace(b.code)) > substantialBlockChars {
				substantial = append(substantial, b)
			}
		}
		if len(substantial) > 0 {
			return newExtraction(substantial, "blocks")
		}
		return newExtraction(blocks, "blocks")
	}

	if code := heuristicCode(content); code != "" {
		return Extraction{Code: code, Language: DetectLanguage(code, ""), Source: "heuristic"}
	}
	return Extraction{}
}

type fencedBlock struct {
	info string
	code string
}

func newExtraction(blocks []fencedBlock, source string) Extraction {
	parts := make([]string, 0, len(blocks))
	hint := ""
	for _, b := range blocks {
		parts = append(parts, b.code)
		if hint == "" {
			hint = b.info
		}
	}
	code := strings.TrimSpace(strings.Join(parts, "\n\n"))
	return Extraction{Code: code, Language: DetectLanguage(code, hint), Source: source}
}

// codeBlocks は ``` で囲まれたブロックを取り出します
// 開始フェンス直後の1語は言語指定として扱います
func codeBlocks(text string) []fencedBlock {
	var blocks []fencedBlock
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		body := m[1]
		info := ""
		if first, rest, ok := strings.Cut(body, "\n"); ok {
			if trimmed := strings.TrimSpace(first); trimmed == "" || infoRe.MatchString(trimmed) {
				info = trimmed
				body = rest
			}
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		blocks = append(blocks, fencedBlock{info: info, code: body})
	}
	return blocks
}

// sectionsWithHeading は見出しが keyword で始まるセクションの本文を返します
// コードフェンス内の # 行は見出しとして扱いません
func sectionsWithHeading(content, keyword string) []string {
	var (
		sections []string
		current  *strings.Builder
		inFence  bool
	)

	flush := func() {
		if current != nil {
			sections = append(sections, current.String())
			current = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if !inFence {
			if m := headingRe.FindStringSubmatch(line); m != nil {
				flush()
				if strings.HasPrefix(strings.ToLower(strings.TrimSpace(m[1])), keyword) {
					current = &strings.Builder{}
				}
				continue
			}
		}
		if strings.Count(line, "```")%2 == 1 {
			inFence = !inFence
		}
		if current != nil {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}
	flush()
	return sections
}

// heuristicCode はコードフェンスがない場合にコードらしい行を集めます
func heuristicCode(content string) string {
	var (
		lines  []string
		inCode bool
	)
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			if inCode {
				lines = append(lines, line)
			}
		case strings.HasPrefix(trimmed, "#"):
			inCode = false
		case looksLikeCode(line, trimmed):
			lines = append(lines, line)
			inCode = true
		default:
			inCode = false
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func looksLikeCode(line, trimmed string) bool {
	if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
		return true
	}
	for _, p := range codeLinePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	if strings.Contains(trimmed, " = ") && !strings.HasPrefix(trimmed, "=") {
		return true
	}
	return strings.HasSuffix(trimmed, ":") && !strings.Contains(trimmed, " ") || funcCallRe.MatchString(trimmed)
}

// DetectLanguage はコードの言語名を返します
// フェンスの言語指定を優先し、判定できない場合は空文字です
func DetectLanguage(code, hint string) string {
	if hint != "" {
		if lang, ok := enry.GetLanguageByAlias(hint); ok {
			return lang
		}
	}
	if strings.TrimSpace(code) == "" {
		return ""
	}
	return enry.GetLanguage("", []byte(code))
}
