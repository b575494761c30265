package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrObjectNotFound is returned by Download for a missing object.
var ErrObjectNotFound = errors.New("object not found")

// Store is an object store with public URLs.
type Store interface {
	// EnsureBucket creates the bucket if it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	PublicURL(bucket, path string) string
}

// Provisioner lazily ensures a fixed set of buckets, at most once per process
// for each bucket that was provisioned successfully.
type Provisioner struct {
	store   Store
	buckets []string

	mu    sync.Mutex
	ready map[string]bool
}

// NewProvisioner creates a Provisioner for buckets.
func NewProvisioner(store Store, buckets ...string) *Provisioner {
	return &Provisioner{
		store:   store,
		buckets: buckets,
		ready:   make(map[string]bool, len(buckets)),
	}
}

// Ensure provisions every bucket not yet known to exist. Failed buckets are
// tried again on the next call.
func (p *Provisioner) Ensure(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, bucket := range p.buckets {
		if p.ready[bucket] {
			continue
		}
		if err := p.store.EnsureBucket(ctx, bucket); err != nil {
			return fmt.Errorf("storage bucket setup failed for %s: %w", bucket, err)
		}
		p.ready[bucket] = true
	}
	return nil
}

func validPath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") {
		return fmt.Errorf("invalid object path %q", path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid object path %q", path)
		}
	}
	return nil
}
