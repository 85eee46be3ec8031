package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockhand/internal/models"
)

func TestTaskStatusTerminal(t *testing.T) {
	assert.False(t, models.TsQueued.Terminal())
	assert.False(t, models.TsRunning.Terminal())
	assert.True(t, models.TsSuccess.Terminal())
	assert.True(t, models.TsFailed.Terminal())
}

func TestJSONMapValue(t *testing.T) {
	var m models.JSONMap
	v, err := m.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	m = models.JSONMap{"key": "value"}
	v, err = m.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"key": "value"}`, string(v.([]byte)))

	// empty is not the same as absent
	v, err = models.JSONMap{}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(v.([]byte)))
}

func TestJSONMapScan(t *testing.T) {
	var m models.JSONMap

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)

	require.NoError(t, m.Scan([]byte(`{"a": 1}`)))
	assert.Equal(t, float64(1), m["a"])

	require.NoError(t, m.Scan(`{"b": "x"}`))
	assert.Equal(t, "x", m["b"])

	assert.Error(t, m.Scan(42))
	assert.Error(t, m.Scan([]byte(`not json`)))
}

func TestJSONMapClone(t *testing.T) {
	var m models.JSONMap
	assert.Nil(t, m.Clone())

	m = models.JSONMap{"a": 1}
	clone := m.Clone()
	clone["b"] = 2
	assert.NotContains(t, m, "b")
	assert.Equal(t, 1, clone["a"])
}
