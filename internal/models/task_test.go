package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTask_Terminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, false},
		{TaskStatusProcessing, false},
		{TaskStatusRetrying, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
	}

	for _, tt := range tests {
		task := &Task{
			ID:     uuid.New(),
			Type:   "email.send",
			Status: tt.status,
		}
		assert.Equal(t, tt.want, task.Terminal(), "status %s", tt.status)
	}
}

func TestJSONB_ValueScan(t *testing.T) {
	payload := JSONB{
		"recipient": "user@example.com",
		"attempts":  float64(3),
	}

	value, err := payload.Value()
	assert.NoError(t, err)

	var restored JSONB
	err = restored.Scan(value)
	assert.NoError(t, err)
	assert.Equal(t, payload, restored)
}

func TestJSONB_ScanNil(t *testing.T) {
	var payload JSONB
	err := payload.Scan(nil)
	assert.NoError(t, err)
	assert.Nil(t, payload)
}

func TestJSONB_ScanString(t *testing.T) {
	var payload JSONB
	err := payload.Scan(`{"key": "value"}`)
	assert.NoError(t, err)
	assert.Equal(t, "value", payload["key"])
}

func TestJSONB_ScanInvalidType(t *testing.T) {
	var payload JSONB
	err := payload.Scan(42)
	assert.Error(t, err)
}

func TestTask_Fields(t *testing.T) {
	now := time.Now()
	task := &Task{
		ID:          uuid.New(),
		Type:        "report.generate",
		Payload:     JSONB{"period": "monthly"},
		Status:      TaskStatusPending,
		MaxAttempts: 3,
		CreatedAt:   now,
		ScheduledAt: now,
	}

	assert.False(t, task.Terminal())
	assert.Nil(t, task.ProcessingStartedAt)
	assert.Nil(t, task.CompletedAt)
	assert.Zero(t, task.Attempts)
}
