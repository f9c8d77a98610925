package region

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapped_FileRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mmap test in short mode")
	}
	path := filepath.Join(t.TempDir(), "pool.bin")

	m, err := OpenMapped(path, 64*1024)
	require.NoError(t, err)
	require.Equal(t, 64*1024, m.Size())
	require.NotZero(t, m.Base())
	assert.Equal(t, path, m.Path())

	copy(m.Bytes()[5000:], []byte("poolkit"))
	m.Tracker().Add(5000, 7)
	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, 0, m.Tracker().Len(), "flush resets the tracker")
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "second close is a no-op")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, 64*1024)
	assert.Equal(t, "poolkit", string(raw[5000:5007]))

	// reopen at the existing length
	m2, err := OpenMapped(path, 0)
	require.NoError(t, err)
	defer m2.Close()
	assert.Equal(t, 64*1024, m2.Size())
	assert.Equal(t, "poolkit", string(m2.Bytes()[5000:5007]))
}

func TestMapped_EmptyFileWithoutSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := OpenMapped(path, 0)
	require.Error(t, err)
}

func TestMapped_Anonymous(t *testing.T) {
	m, err := NewAnonymous(8192)
	require.NoError(t, err)
	require.Equal(t, 8192, m.Size())
	assert.Empty(t, m.Path())

	m.Bytes()[8191] = 1
	m.Tracker().Add(8191, 1)
	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, 0, m.Tracker().Len())

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Flush(context.Background()), ErrClosed)

	_, err = NewAnonymous(0)
	require.Error(t, err)
}

func TestMapped_FlushCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cancel.bin")
	m, err := OpenMapped(path, 8192)
	require.NoError(t, err)
	defer m.Close()

	m.Tracker().Add(0, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Flush(ctx), context.Canceled)
	assert.Equal(t, 1, m.Tracker().Len(), "cancelled flush keeps dirty ranges")
}
