package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	calls map[string]int
	fail  map[string]error
}

func (s *countingStore) EnsureBucket(ctx context.Context, bucket string) error {
	s.calls[bucket]++
	if err := s.fail[bucket]; err != nil {
		return err
	}
	return nil
}

func TestProvisioner_EnsuresOncePerBucket(t *testing.T) {
	store := &countingStore{calls: map[string]int{}, fail: map[string]error{}}
	p := NewProvisioner(store, "original-images", "colorized-images")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Ensure(ctx))
	}

	assert.Equal(t, 1, store.calls["original-images"])
	assert.Equal(t, 1, store.calls["colorized-images"])
}

func TestProvisioner_RetriesFailedBucket(t *testing.T) {
	store := &countingStore{
		calls: map[string]int{},
		fail:  map[string]error{"colorized-images": errors.New("status 500")},
	}
	p := NewProvisioner(store, "original-images", "colorized-images")
	ctx := context.Background()

	err := p.Ensure(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colorized-images")

	delete(store.fail, "colorized-images")
	require.NoError(t, p.Ensure(ctx))

	assert.Equal(t, 1, store.calls["original-images"])
	assert.Equal(t, 2, store.calls["colorized-images"])
}
