package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/review-runner/internal/module/review/application"
)

func TestProcessRegistry_AddRemove(t *testing.T) {
	r := application.NewProcessRegistry(testLogger())

	assert.False(t, r.HasRunning())

	r.Add(application.ProcessReviewAnalysis, "b1")
	r.Add(application.ProcessTrainerAnalysis, "q1")

	assert.True(t, r.HasRunning())
	assert.Equal(t, []string{"review_analysis_b1", "trainer_question_analysis_q1"}, r.Running())
	assert.True(t, r.IsTypeRunning(application.ProcessReviewAnalysis))
	assert.Equal(t, []string{"trainer_question_analysis_q1"}, r.OtherRunning(application.ProcessReviewAnalysis))

	r.Remove(application.ProcessReviewAnalysis, "b1")
	assert.False(t, r.IsTypeRunning(application.ProcessReviewAnalysis))
	r.Remove(application.ProcessTrainerAnalysis, "q1")
	assert.False(t, r.HasRunning())
	assert.Empty(t, r.OtherRunning(application.ProcessReviewAnalysis))
}

func TestProcessRegistry_OnStateChange(t *testing.T) {
	r := application.NewProcessRegistry(testLogger())

	var (
		mu     sync.Mutex
		states []bool
	)
	unsubscribe := r.OnStateChange(func(running bool, processes []string) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, running)
	})

	r.Add(application.ProcessTrainerAnalysis, "m1")
	r.Remove(application.ProcessTrainerAnalysis, "m1")
	// 未登録キーの削除は通知しない
	r.Remove(application.ProcessTrainerAnalysis, "m1")

	unsubscribe()
	r.Add(application.ProcessTrainerAnalysis, "m2")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, states)
}

func TestProcessRegistry_PanickingSubscriber(t *testing.T) {
	r := application.NewProcessRegistry(testLogger())

	called := 0
	r.OnStateChange(func(bool, []string) { panic("boom") })
	r.OnStateChange(func(running bool, processes []string) {
		called++
		require.Len(t, processes, 1)
	})

	assert.NotPanics(t, func() {
		r.Add(application.ProcessReviewAnalysis, "b1")
	})
	assert.Equal(t, 1, called)
}
