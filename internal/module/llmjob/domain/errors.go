package domain

import "errors"

var (
	// ErrJobNotFound はジョブが存在しない場合のエラー
	ErrJobNotFound = errors.New("job not found")

	// ErrModelNotFound はモデルが存在しないか無効な場合のエラー
	ErrModelNotFound = errors.New("invalid or inactive model")

	// ErrInvalidJobType は未知のジョブ種別のエラー
	ErrInvalidJobType = errors.New("invalid job type")

	// ErrInvalidTransition は許可されない状態遷移のエラー
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrJobNotComplete は未完了ジョブの結果を要求した場合のエラー
	ErrJobNotComplete = errors.New("job is not completed")

	// ErrNoExecutor はジョブ種別に対応する実行器がない場合のエラー
	ErrNoExecutor = errors.New("no executor registered for job type")

	// ErrInvalidInput は input_data が不正な場合のエラー
	ErrInvalidInput = errors.New("invalid input data")

	// ErrDispatchFailed はジョブをワーカーへ配送できなかった場合のエラー
	ErrDispatchFailed = errors.New("failed to dispatch job")

	// ErrRecoveryRunning は別の回復処理が実行中の場合のエラー
	ErrRecoveryRunning = errors.New("job recovery already running")
)
