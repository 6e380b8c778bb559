package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Shyp/jobqueue/models"
)

func TestPriorityRankOrdering(t *testing.T) {
	assert.Less(t, models.PriorityUrgent.Rank(), models.PriorityHigh.Rank())
	assert.Less(t, models.PriorityHigh.Rank(), models.PriorityNormal.Rank())
	assert.Less(t, models.PriorityNormal.Rank(), models.PriorityLow.Rank())
}

func TestPriorityValid(t *testing.T) {
	assert.True(t, models.PriorityUrgent.Valid())
	assert.False(t, models.Priority("extreme").Valid())
}

func TestPriorityValue(t *testing.T) {
	v, err := models.PriorityHigh.Value()
	assert.NoError(t, err)
	assert.Equal(t, "high", v)
}

func TestPriorityScan(t *testing.T) {
	var p models.Priority
	assert.NoError(t, p.Scan([]byte("low")))
	assert.Equal(t, models.PriorityLow, p)

	assert.NoError(t, p.Scan("urgent"))
	assert.Equal(t, models.PriorityUrgent, p)

	assert.NoError(t, p.Scan(nil))
	assert.Equal(t, models.Priority(""), p)

	assert.Error(t, p.Scan(42))
}

func TestJobNextAttempt(t *testing.T) {
	j := &models.Job{RetryCount: 1, MaxRetries: 3}
	next, retryable := j.NextAttempt()
	assert.Equal(t, 2, next)
	assert.True(t, retryable)

	j = &models.Job{RetryCount: 2, MaxRetries: 3}
	next, retryable = j.NextAttempt()
	assert.Equal(t, 3, next)
	assert.False(t, retryable)
}

func TestStatusScanAndValue(t *testing.T) {
	var s models.Status
	assert.NoError(t, s.Scan("processing"))
	assert.Equal(t, models.StatusProcessing, s)

	v, err := s.Value()
	assert.NoError(t, err)
	assert.Equal(t, "processing", v)
}
