package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecordStoreContract runs a suite of tests to verify that a RecordStore implementation
// adheres to the defined interface contract. The store must start empty.
func RunRecordStoreContract(t *testing.T, store RecordStore) {
	ctx := context.Background()

	t.Run("Read Empty", func(t *testing.T) {
		_, err := store.ReadRecord(ctx)
		assert.ErrorIs(t, err, domain.ErrPortNotKnown)
	})

	t.Run("Publish and Read", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		err := store.Publish(ctx, domain.PortRecord{Port: 41000, WrittenAt: time.Now()})
		require.NoError(t, err, "Publish should not return error")

		rec, err := store.ReadRecord(ctx)
		require.NoError(t, err, "ReadRecord should not return error")
		assert.Equal(t, 41000, rec.Port)
		assert.True(t, rec.FreshSince(before), "record should be fresh for a lifetime started before the write")
	})

	t.Run("Publish Overwrites", func(t *testing.T) {
		require.NoError(t, store.Publish(ctx, domain.PortRecord{Port: 41001, WrittenAt: time.Now()}))

		rec, err := store.ReadRecord(ctx)
		require.NoError(t, err)
		assert.Equal(t, 41001, rec.Port)
	})

	t.Run("Clear Foreign Port Keeps Record", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, 50000))

		rec, err := store.ReadRecord(ctx)
		require.NoError(t, err)
		assert.Equal(t, 41001, rec.Port)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, 41001))

		_, err := store.ReadRecord(ctx)
		assert.ErrorIs(t, err, domain.ErrPortNotKnown, "ReadRecord after Clear should return ErrPortNotKnown")
	})

	t.Run("Clear Empty", func(t *testing.T) {
		assert.NoError(t, store.Clear(ctx, 41001))
	})
}
