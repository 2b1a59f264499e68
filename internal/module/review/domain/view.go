package domain

// CardState はプレースホルダーの表示状態です
type CardState string

const (
	CardStatePending  CardState = "pending"
	CardStateProgress CardState = "progress"
	CardStateSuccess  CardState = "success"
	CardStateError    CardState = "error"
)

// IsTerminal は成功・失敗いずれかの最終表示かを返します
func (s CardState) IsTerminal() bool {
	return s == CardStateSuccess || s == CardStateError
}

// Section は結果カード内の1セクションです
type Section struct {
	Heading string
	Body    string
	// Score はスコアを持つセクション（類似度など）でのみ設定されます
	Score    *int
	Severity string
}

// Card はプレースホルダーに描画される内容です
type Card struct {
	Title    string
	State    CardState
	Headline string
	Badge    string
	Message  string
	Sections []Section
}

// Placeholder はジョブ1件分の描画先です
type Placeholder interface {
	Render(card Card)
	// Attached は描画先がまだ有効かを返します。無効な描画先への Render は呼ばれません
	Attached() bool
}

// Board はプレースホルダーを生成・破棄する描画領域です
type Board interface {
	NewPlaceholder(key, title string) Placeholder
	// Clear は既存のプレースホルダーをすべて切り離します
	Clear()
}

// Trigger はバッチ実行ボタンに相当する操作部品です
type Trigger interface {
	Busy(label string)
	Idle(label string)
	Notify(message string)
}
