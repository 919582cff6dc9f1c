// ABOUTME: Tests for the KV storage backends
// ABOUTME: Covers round-trips, missing keys, overwrites, and restart durability

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kvBackends returns each backend under test with a cleanup hook.
func kvBackends(t *testing.T) map[string]KV {
	t.Helper()

	sqlitePath := filepath.Join(t.TempDir(), "test.db")
	sqliteKV, err := NewSQLiteKV(sqlitePath)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteKV.Close() })

	memKV := NewMemoryKV()
	t.Cleanup(func() { memKV.Close() })

	return map[string]KV{
		"sqlite": sqliteKV,
		"memory": memKV,
	}
}

func TestKV_PutGetRoundTrip(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, kv.Put(ctx, "greeting", []byte("hello")))

			got, err := kv.Get(ctx, "greeting")
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), got)
		})
	}
}

func TestKV_GetMissingKey(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(context.Background(), "nope")
			assert.True(t, errors.Is(err, ErrKeyNotFound))
		})
	}
}

func TestKV_PutOverwrites(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, kv.Put(ctx, "k", []byte("first")))
			require.NoError(t, kv.Put(ctx, "k", []byte("second")))

			got, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("second"), got)
		})
	}
}

func TestKV_Delete(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, kv.Put(ctx, "k", []byte("v")))
			require.NoError(t, kv.Delete(ctx, "k"))

			_, err := kv.Get(ctx, "k")
			assert.True(t, errors.Is(err, ErrKeyNotFound))

			// Deleting an absent key is not an error
			require.NoError(t, kv.Delete(ctx, "k"))
		})
	}
}

func TestSQLiteKV_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	kv1, err := NewSQLiteKV(path)
	require.NoError(t, err)
	require.NoError(t, kv1.Put(ctx, "durable", []byte("payload")))
	require.NoError(t, kv1.Close())

	kv2, err := NewSQLiteKV(path)
	require.NoError(t, err)
	defer kv2.Close()

	got, err := kv2.Get(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestSQLiteKV_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "kv.db")

	kv, err := NewSQLiteKV(path)
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Put(context.Background(), "k", []byte("v")))
}

func TestMemoryKV_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	require.NoError(t, kv.Put(ctx, "k", []byte("abc")))

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
