package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollers_ReleaseForgetsHandle(t *testing.T) {
	var p pollers

	ctx1, cancel1 := context.WithCancel(context.Background())
	release1, ok := p.add(cancel1)
	require.True(t, ok)
	ctx2, cancel2 := context.WithCancel(context.Background())
	_, ok = p.add(cancel2)
	require.True(t, ok)
	assert.Equal(t, 2, p.len())

	release1()
	release1()
	assert.Equal(t, 1, p.len())
	assert.Error(t, ctx1.Err())
	assert.NoError(t, ctx2.Err())

	p.closeAll()
	assert.Equal(t, 0, p.len())
	assert.Error(t, ctx2.Err())

	_, cancel3 := context.WithCancel(context.Background())
	defer cancel3()
	_, ok = p.add(cancel3)
	assert.False(t, ok)
}

func TestPollers_ManySessionsDoNotAccumulate(t *testing.T) {
	var p pollers
	for i := 0; i < 100; i++ {
		_, cancel := context.WithCancel(context.Background())
		release, ok := p.add(cancel)
		require.True(t, ok)
		release()
	}
	assert.Equal(t, 0, p.len())
}
