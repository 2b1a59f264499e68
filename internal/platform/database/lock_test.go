package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jinford/review-runner/internal/platform/config"
)

func TestGenerateLockID(t *testing.T) {
	a := GenerateLockID("llm-job-recovery")
	b := GenerateLockID("llm-job-recovery")
	c := GenerateLockID("llm-job", "-recovery")
	d := GenerateLockID("other")

	assert.Equal(t, a, b)
	// 区切りなしで連結した結果と同じになる
	assert.Equal(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestConnString(t *testing.T) {
	got := ConnString(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "review",
		Password: "pw",
		DBName:   "jobs",
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db port=5433 user=review password=pw dbname=jobs sslmode=disable", got)
}
