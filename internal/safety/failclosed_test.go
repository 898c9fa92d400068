package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A malfunction inside classification must escalate, never default to safe.
func TestClassifyFailsClosedOnPanic(t *testing.T) {
	original := indicatorSets[CategoryPII]
	indicatorSets[CategoryPII] = append([]indicator{{re: nil, reason: "broken"}}, original...)
	defer func() { indicatorSets[CategoryPII] = original }()

	c := NewClassifier(nil, nil)
	res := c.Classify("a perfectly ordinary question about nap schedules")

	assert.Equal(t, CategoryCrisis, res.Category)
	require.NotNil(t, res.Refusal)
}
