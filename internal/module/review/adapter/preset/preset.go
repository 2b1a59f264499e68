package preset

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jinford/review-runner/internal/module/review/domain"
)

const envPrefix = "REVIEW"

// Preset はレビュー実行の既定値をまとめたものです
// 設定ファイル（YAML/JSON）より環境変数 REVIEW_* が優先されます
type Preset struct {
	Models            []string      `mapstructure:"models"`
	Temperature       float64       `mapstructure:"temperature"`
	AdditionalContext string        `mapstructure:"additional-context"`
	QuestionID        string        `mapstructure:"question-id"`
	PollInterval      time.Duration `mapstructure:"poll-interval"`
}

// field: default value
var defaults = map[string]any{
	"models":             []string{},
	"temperature":        0.3,
	"additional-context": "",
	"question-id":        "",
	"poll-interval":      2 * time.Second,
}

// Load はプリセットを読み込みます。path が空の場合は環境変数と既定値のみを使います
func Load(path string) (*Preset, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read preset: %w", err)
		}
	}

	var p Preset
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("could not unmarshal preset: %w", err)
	}
	// 環境変数で渡されたカンマ区切りのモデル一覧を展開する
	p.Models = splitModels(p.Models)

	if p.Temperature < 0 || p.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2: %v", p.Temperature)
	}
	return &p, nil
}

// Workers はプリセットのモデル一覧を Worker に変換します
// 各要素は "id" または "id:表示名" の形式です
func (p *Preset) Workers() []domain.Worker {
	return ParseWorkers(p.Models)
}

// ParseWorkers は "id[:name]" 形式の一覧を Worker に変換します
func ParseWorkers(specs []string) []domain.Worker {
	workers := make([]domain.Worker, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		id, name, _ := strings.Cut(spec, ":")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if name == "" {
			name = id
		}
		workers = append(workers, domain.Worker{ID: id, Name: name})
	}
	return workers
}

func splitModels(models []string) []string {
	var result []string
	for _, m := range models {
		for _, part := range strings.Split(m, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
