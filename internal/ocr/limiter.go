package ocr

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WithConcurrencyLimit caps how many pages are recognised at once across all
// callers sharing the returned engine.
func WithConcurrencyLimit(e Engine, max int64) Engine {
	if max <= 0 {
		return e
	}
	return &limitedEngine{Engine: e, sem: semaphore.NewWeighted(max)}
}

type limitedEngine struct {
	Engine
	sem *semaphore.Weighted
}

func (l *limitedEngine) Recognize(ctx context.Context, imagePath string) (Page, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Page{}, err
	}
	defer l.sem.Release(1)
	return l.Engine.Recognize(ctx, imagePath)
}
