package task_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockhand/internal/models"
	"dockhand/internal/task"
)

func TestRegistry(t *testing.T) {
	reg := task.NewRegistry()
	assert.False(t, reg.Has("image.pull"))
	assert.Empty(t, reg.Types())

	reg.Register("image.pull", func(models.JSONMap) (models.JSONMap, error) {
		return models.JSONMap{"done": true}, nil
	})
	reg.Register("git.clone", func(models.JSONMap) (models.JSONMap, error) {
		return nil, nil
	})

	assert.True(t, reg.Has("image.pull"))
	assert.Equal(t, []string{"git.clone", "image.pull"}, reg.Types())

	handler, ok := reg.Get("image.pull")
	require.True(t, ok)
	result, err := handler(nil)
	require.NoError(t, err)
	assert.Equal(t, true, result["done"])

	_, ok = reg.Get("missing.type")
	assert.False(t, ok)
}
