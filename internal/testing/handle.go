package testing

import "sync"

// Push is a single event recorded by RecordingHandle
type Push struct {
	Event string
	Data  []byte
}

// RecordingHandle is an outbound connection handle that keeps every push in memory.
// Setting Fail makes every push return that error without recording it.
type RecordingHandle struct {
	mu     sync.Mutex
	pushes []Push
	Fail   error
}

func (h *RecordingHandle) Push(event string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Fail != nil {
		return h.Fail
	}
	h.pushes = append(h.pushes, Push{Event: event, Data: append([]byte(nil), data...)})
	return nil
}

// Pushes returns a copy of the recorded pushes
func (h *RecordingHandle) Pushes() []Push {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Push(nil), h.pushes...)
}

// Events returns the recorded pushes with the given event name
func (h *RecordingHandle) Events(event string) []Push {
	var out []Push
	for _, p := range h.Pushes() {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}
