package helper

import "sync"

// Lazy builds a value on first use and caches it for the life of the process.
// A failed build is returned to the caller that triggered it and attempted
// again on the next Get.
type Lazy[T any] struct {
	mu    sync.Mutex
	init  func() (T, error)
	value T
	done  bool
}

func NewLazy[T any](init func() (T, error)) *Lazy[T] {
	return &Lazy[T]{init: init}
}

// Of wraps an already constructed value.
func Of[T any](v T) *Lazy[T] {
	return &Lazy[T]{value: v, done: true}
}

func (l *Lazy[T]) Get() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.value, nil
	}
	v, err := l.init()
	if err != nil {
		var zero T
		return zero, err
	}
	l.value, l.done = v, true
	return v, nil
}
