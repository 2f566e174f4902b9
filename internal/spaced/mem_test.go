package spaced

import (
	"context"

	"topicbot/internal/storage"
)

type memBackend struct{ snap storage.Snapshot }

func (b *memBackend) Load(context.Context) (storage.Snapshot, error) {
	return storage.Snapshot{}, nil
}

func (b *memBackend) Save(_ context.Context, snap storage.Snapshot) error {
	b.snap = snap
	return nil
}

func (b *memBackend) Close() error { return nil }
