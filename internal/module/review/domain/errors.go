package domain

import "errors"

var (
	// ErrNoWorkers はファンアウト先が1件も指定されていない場合のエラー
	ErrNoWorkers = errors.New("at least one model must be selected")

	// ErrAnalysisRunning は別種の分析が実行中の場合のエラー
	ErrAnalysisRunning = errors.New("another analysis is currently running")

	// ErrEmptyInput は投入内容が空の場合のエラー
	ErrEmptyInput = errors.New("job input is empty")
)
