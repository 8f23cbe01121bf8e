package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrectiveEvent_Severity(t *testing.T) {
	tests := []struct {
		priority string
		want     float64
	}{
		{PriorityP1, 4},
		{PriorityP2, 3},
		{PriorityP3, 2},
		{PriorityP4, 1},
		{"Emergency", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.priority, func(t *testing.T) {
			assert.Equal(t, tt.want, CorrectiveEvent{Priority: tt.priority}.Severity())
		})
	}
}

func TestCorrectiveEvent_Closed(t *testing.T) {
	assert.True(t, CorrectiveEvent{Status: CMStatusClosed}.Closed())
	assert.True(t, CorrectiveEvent{Status: CMStatusCompleted}.Closed())
	assert.False(t, CorrectiveEvent{Status: CMStatusOpen}.Closed())
	assert.False(t, CorrectiveEvent{Status: CMStatusInProgress}.Closed())
}

func TestPMCompletion_Hours(t *testing.T) {
	assert.InDelta(t, 2.5, PMCompletion{LaborHours: 2, LaborMinutes: 30}.Hours(), 1e-9)
	assert.Zero(t, PMCompletion{}.Hours())
}

func TestEquipment_EligibleForPrediction(t *testing.T) {
	assert.True(t, Equipment{Status: StatusActive}.EligibleForPrediction())
	assert.True(t, Equipment{Status: StatusRunToFailure}.EligibleForPrediction())
	assert.False(t, Equipment{Status: StatusDeactivated}.EligibleForPrediction())
	assert.False(t, Equipment{}.EligibleForPrediction())
}
