package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore(time.Minute)

	id, sess := store.Create()
	require.NotEmpty(t, id)
	require.Same(t, sess, store.Get(id))
}

func TestStoreGetUnknownID(t *testing.T) {
	store := NewStore(time.Minute)
	require.Nil(t, store.Get("missing"))
}

func TestStoreExpiry(t *testing.T) {
	store := NewStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	id, _ := store.Create()

	now = now.Add(2 * time.Minute)
	require.Nil(t, store.Get(id), "expired session must not be returned")
}

func TestStoreSweep(t *testing.T) {
	store := NewStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	store.Create()
	store.Create()
	keptID, _ := store.Create()

	now = now.Add(30 * time.Second)
	require.Zero(t, store.Sweep())

	now = now.Add(time.Minute)
	require.Equal(t, 3, store.Sweep())
	require.Nil(t, store.Get(keptID))
}
