package client

import (
	"strings"
	"sync"
)

var movementVerbs = map[string]string{
	"w":          "forward",
	"a":          "left",
	"s":          "reverse",
	"d":          "right",
	"arrowup":    "forward",
	"arrowleft":  "left",
	"arrowdown":  "reverse",
	"arrowright": "right",
}

// MovementVerb returns the movement command bound to key.
func MovementVerb(key string) (string, bool) {
	verb, ok := movementVerbs[strings.ToLower(key)]
	return verb, ok
}

// MovementKeys tracks held movement keys. Releasing a key sends stop only
// when no other movement key is still held; otherwise the most recently
// pressed held key's verb is sent again.
type MovementKeys struct {
	mu   sync.Mutex
	held []string
	send func(command string) error
}

func NewMovementKeys(send func(command string) error) *MovementKeys {
	return &MovementKeys{send: send}
}

// Press handles a key down. Auto-repeat of a held key and non-movement keys
// send nothing.
func (m *MovementKeys) Press(key string) error {
	key = strings.ToLower(key)
	verb, ok := movementVerbs[key]
	if !ok {
		return nil
	}

	m.mu.Lock()
	if m.indexLocked(key) >= 0 {
		m.mu.Unlock()
		return nil
	}
	m.held = append(m.held, key)
	m.mu.Unlock()

	return m.send(verb)
}

func (m *MovementKeys) Release(key string) error {
	key = strings.ToLower(key)

	m.mu.Lock()
	i := m.indexLocked(key)
	if i < 0 {
		m.mu.Unlock()
		return nil
	}
	m.held = append(m.held[:i], m.held[i+1:]...)

	command := "stop"
	if n := len(m.held); n > 0 {
		command = movementVerbs[m.held[n-1]]
	}
	m.mu.Unlock()

	return m.send(command)
}

// ReleaseAll clears every held key, sending stop if any was held.
func (m *MovementKeys) ReleaseAll() error {
	m.mu.Lock()
	wasHeld := len(m.held) > 0
	m.held = nil
	m.mu.Unlock()

	if !wasHeld {
		return nil
	}
	return m.send("stop")
}

func (m *MovementKeys) Held() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.held))
	copy(out, m.held)
	return out
}

func (m *MovementKeys) indexLocked(key string) int {
	for i, k := range m.held {
		if k == key {
			return i
		}
	}
	return -1
}
