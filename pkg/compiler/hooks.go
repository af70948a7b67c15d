package compiler

import "sync"

// Hooks groups the notifications a compiler fires.
type Hooks struct {
	Done *DoneHook
}

// NewHooks returns an empty set of hooks.
func NewHooks() *Hooks {
	return &Hooks{Done: &DoneHook{}}
}

// DoneHook is fired after every build with the build's stats. Listeners stay
// registered until they are removed with the function returned by Tap.
type DoneHook struct {
	mu     sync.Mutex
	nextID int
	taps   []doneTap
}

type doneTap struct {
	id   int
	name string
	fn   func(Stats)
}

// Tap registers fn under name and returns a function that removes it.
// Removing twice is harmless.
func (h *DoneHook) Tap(name string, fn func(Stats)) (untap func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.taps = append(h.taps, doneTap{id: id, name: name, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, t := range h.taps {
				if t.id == id {
					h.taps = append(h.taps[:i:i], h.taps[i+1:]...)
					return
				}
			}
		})
	}
}

// Call invokes every listener in registration order.
func (h *DoneHook) Call(stats Stats) {
	h.mu.Lock()
	taps := make([]doneTap, len(h.taps))
	copy(taps, h.taps)
	h.mu.Unlock()

	for _, t := range taps {
		t.fn(stats)
	}
}

// Names lists the registered listeners.
func (h *DoneHook) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.taps))
	for _, t := range h.taps {
		names = append(names, t.name)
	}
	return names
}
