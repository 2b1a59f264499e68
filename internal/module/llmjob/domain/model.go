package domain

// Model はジョブを実行するLLMモデルです
type Model struct {
	ID          string
	Name        string
	Provider    string
	Description string
	Active      bool
}
