package pg

import (
	"context"
	"fmt"
)

// schemaStatements はジョブAPIが使用するテーブル定義です
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS llm_models (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		provider    TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS llm_jobs (
		job_id        UUID PRIMARY KEY,
		job_type      TEXT NOT NULL,
		model_id      TEXT NOT NULL REFERENCES llm_models (id),
		question_id   TEXT,
		input_data    JSONB NOT NULL DEFAULT '{}'::jsonb,
		status        TEXT NOT NULL,
		result_data   JSONB,
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		started_at    TIMESTAMPTZ,
		completed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_jobs_status_created ON llm_jobs (status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_jobs_question ON llm_jobs (question_id)`,
}

// EnsureSchema はテーブルとインデックスを作成します（既存の場合は何もしません）
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
