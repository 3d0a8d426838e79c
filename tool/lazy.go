package tool

import (
	"context"
	"sync"
)

// Lazy builds a value on first use and caches the outcome, error included,
// for the life of the process.
type Lazy[T any] struct {
	once    sync.Once
	factory func() (T, error)
	val     T
	err     error
}

// NewLazy wraps factory.
func NewLazy[T any](factory func() (T, error)) *Lazy[T] {
	return &Lazy[T]{factory: factory}
}

// Get runs the factory once and returns its result.
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		l.val, l.err = l.factory()
	})
	return l.val, l.err
}

// LazySearcher defers client construction until the first search, so a
// process without web search credentials starts and fails only when a turn
// actually needs the web.
type LazySearcher struct {
	lazy *Lazy[WebSearcher]
}

// NewLazySearcher wraps a searcher factory.
func NewLazySearcher(factory func() (WebSearcher, error)) *LazySearcher {
	return &LazySearcher{lazy: NewLazy(factory)}
}

// Search builds the client if needed and delegates to it.
func (l *LazySearcher) Search(ctx context.Context, query string, maxResults int) ([]WebResult, error) {
	s, err := l.lazy.Get()
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, query, maxResults)
}
