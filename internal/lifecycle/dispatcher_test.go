package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []any
	err       error
}

func (p *fakePublisher) PublishJSON(_ context.Context, v any) error {
	p.published = append(p.published, v)
	return p.err
}

func TestQueueDispatcher(t *testing.T) {
	p := &fakePublisher{}
	d := NewQueueDispatcher(p)

	job := domain.Job{RequestID: "req-1", UserID: "user-1", OriginalPath: "user-1/req-1.png", Image: []byte("bw")}
	require.NoError(t, d.Dispatch(context.Background(), job))
	require.Len(t, p.published, 1)
	assert.Equal(t, job, p.published[0])

	p.err = errors.New("channel closed")
	err := d.Dispatch(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "req-1")
}
