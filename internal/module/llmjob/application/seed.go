package application

import (
	"context"
	"fmt"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// SeedModels は設定されたモデルを登録します
// 既存のモデルは名前・プロバイダ・説明を上書きし、有効にします
func SeedModels(ctx context.Context, repo domain.ModelRepository, models []domain.Model) error {
	for i := range models {
		m := models[i]
		if m.ID == "" {
			return fmt.Errorf("model id is required")
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		if m.Provider == "" {
			m.Provider = "openai"
		}
		m.Active = true
		if err := repo.UpsertModel(ctx, &m); err != nil {
			return fmt.Errorf("failed to seed model %q: %w", m.ID, err)
		}
	}
	return nil
}
