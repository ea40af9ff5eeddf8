package typewriter

import "sync"

// VisibilitySource delivers visibility changes. Subscribe returns the
// function that releases the subscription.
type VisibilitySource interface {
	Subscribe(fn func(visible bool)) (release func())
}

// Visibility fans one visibility signal out to every mounted engine.
type Visibility struct {
	mu      sync.Mutex
	visible bool
	next    int
	subs    map[int]func(bool)
}

func NewVisibility() *Visibility {
	return &Visibility{visible: true, subs: make(map[int]func(bool))}
}

func (v *Visibility) Subscribe(fn func(visible bool)) func() {
	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Set records the new state and notifies subscribers if it changed.
func (v *Visibility) Set(visible bool) {
	v.mu.Lock()
	if v.visible == visible {
		v.mu.Unlock()
		return
	}
	v.visible = visible
	fns := make([]func(bool), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}

func (v *Visibility) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// Subscribers is the number of live subscriptions.
func (v *Visibility) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}
