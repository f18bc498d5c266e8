package storage

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds how many readers may share a collection at once. A writer
// takes every unit, so it waits for in-flight readers and blocks new ones.
const maxReaders = 64

// collectionLock is a reader/writer lock whose acquisition honours ctx.
// semaphore.Weighted serves waiters in FIFO order, so a queued writer is not
// starved by a stream of readers.
type collectionLock struct {
	sem *semaphore.Weighted
}

func newCollectionLock() *collectionLock {
	return &collectionLock{sem: semaphore.NewWeighted(maxReaders)}
}

func (l *collectionLock) lock(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, maxReaders); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(maxReaders) }, nil
}

func (l *collectionLock) rlock(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}
