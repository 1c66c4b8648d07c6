package recurring

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobIDPattern = regexp.MustCompile(`^[a-z0-9]{4,12}$`)

func TestGenerateJobIDProducesValidShape(t *testing.T) {
	id, err := generateJobID(context.Background(), func(context.Context, string) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Regexp(t, jobIDPattern, id)
	assert.Len(t, id, 4)
}

func TestGenerateJobIDWidensOnCollision(t *testing.T) {
	seen := map[string]bool{}
	calls := 0
	exists := func(_ context.Context, id string) (bool, error) {
		calls++
		if len(id) == 4 {
			return true, nil
		}
		seen[id] = true
		return false, nil
	}
	id, err := generateJobID(context.Background(), exists)
	require.NoError(t, err)
	assert.Greater(t, len(id), 4)
	assert.True(t, seen[id])
}

func TestRandomJobIDLength(t *testing.T) {
	id, err := randomJobID(6)
	require.NoError(t, err)
	assert.Len(t, id, 6)
	assert.Regexp(t, `^[a-z0-9]{6}$`, id)
}
