package postgres

import (
	"encoding/json"
	"testing"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRowOptionalColumns(t *testing.T) {
	plain, err := frameRow(port.StoredFrame{Frame: entity.ExtractedFrame{}})
	require.NoError(t, err)
	assert.Nil(t, plain.eventType)
	assert.Nil(t, plain.cursor, "absent cursor is stored as NULL")
	assert.Nil(t, plain.metrics)
	assert.NotEmpty(t, plain.changeContext)

	m := entity.ZeroChangeMetrics()
	full, err := frameRow(port.StoredFrame{Frame: entity.ExtractedFrame{
		Cursor:  &entity.CursorPosition{X: 3, Y: 4, Visible: true},
		Metrics: &m,
		Event:   &entity.DetectedEvent{Event: entity.EventScroll, Confidence: 0.7, Reason: "content moving up"},
	}})
	require.NoError(t, err)
	require.NotNil(t, full.eventType)
	assert.Equal(t, "scroll", *full.eventType)
	assert.Equal(t, 0.7, *full.eventConfidence)

	var back entity.FrameMetrics
	require.NoError(t, json.Unmarshal(full.metrics, &back))
	assert.Equal(t, 1.0, back.GlobalSSIM)
}

func TestEmbeddedMigrations(t *testing.T) {
	body, err := migrationFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS extraction_runs")
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS extracted_frames")
}
