package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jinford/review-runner/internal/module/review/domain"
)

// Board はカードを io.Writer に逐次書き出す描画領域です
// Clear 後は古いプレースホルダーが切り離され、描画しても何も出力されません
type Board struct {
	mu         sync.Mutex
	w          io.Writer
	generation int
}

// NewBoard は新しいBoardを作成します
func NewBoard(w io.Writer) *Board {
	return &Board{w: w}
}

// NewPlaceholder はジョブ1件分の描画先を作成します
func (b *Board) NewPlaceholder(key, title string) domain.Placeholder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &placeholder{board: b, key: key, title: title, generation: b.generation}
}

// Clear は既存のプレースホルダーをすべて切り離します
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
}

type placeholder struct {
	board      *Board
	key        string
	title      string
	generation int

	mu   sync.Mutex
	last string
}

func (p *placeholder) Attached() bool {
	p.board.mu.Lock()
	defer p.board.mu.Unlock()
	return p.generation == p.board.generation
}

// Render は直前と同じ内容であれば出力を省略します
func (p *placeholder) Render(card domain.Card) {
	if card.Title == "" {
		card.Title = p.title
	}
	text := FormatCard(card)

	p.mu.Lock()
	if text == p.last {
		p.mu.Unlock()
		return
	}
	p.last = text
	p.mu.Unlock()

	p.board.mu.Lock()
	defer p.board.mu.Unlock()
	if p.generation != p.board.generation {
		return
	}
	_, _ = io.WriteString(p.board.w, text)
}

// FormatCard はカードをテキストに整形します
func FormatCard(card domain.Card) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[%s] %s %s", card.Title, stateMark(card.State), card.Headline)
	if card.Badge != "" {
		fmt.Fprintf(&sb, " (%s)", card.Badge)
	}
	sb.WriteString("\n")

	if card.Message != "" {
		writeIndented(&sb, card.Message)
	}

	for _, s := range card.Sections {
		heading := s.Heading
		switch {
		case s.Score != nil:
			heading = fmt.Sprintf("%s [%d%% %s]", heading, *s.Score, s.Severity)
		case s.Severity != "":
			heading = fmt.Sprintf("%s [%s]", heading, s.Severity)
		}
		fmt.Fprintf(&sb, "  %s:\n", heading)
		if s.Body != "" {
			writeIndented(&sb, s.Body)
		}
	}
	return sb.String()
}

func stateMark(state domain.CardState) string {
	switch state {
	case domain.CardStateSuccess:
		return "OK"
	case domain.CardStateError:
		return "ERROR"
	case domain.CardStateProgress:
		return "..."
	default:
		return "--"
	}
}

func writeIndented(sb *strings.Builder, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}
