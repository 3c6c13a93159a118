// Package typing tracks which user each sender is currently typing to and
// emits typing notifications subject to the users' block lists.
package typing

import "sync"

// State maps a sender to the single recipient they are typing to.
type State struct {
	mu      sync.Mutex
	targets map[string]string
}

func NewState() *State {
	return &State{targets: make(map[string]string)}
}

// Start records sender as typing to recipient. If sender was typing to a
// different recipient, that previous recipient is returned.
func (s *State) Start(sender, recipient string) (previous string, switched bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.targets[sender]
	s.targets[sender] = recipient
	if ok && prev != recipient {
		return prev, true
	}
	return "", false
}

// Stop clears the entry only if sender is typing to recipient.
func (s *State) Stop(sender, recipient string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.targets[sender]; ok && current == recipient {
		delete(s.targets, sender)
		return true
	}
	return false
}

// Clear removes any entry for sender and returns the recipient it pointed to.
func (s *State) Clear(sender string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recipient, ok := s.targets[sender]
	if ok {
		delete(s.targets, sender)
	}
	return recipient, ok
}

// target returns who sender is typing to, if anyone.
func (s *State) target(sender string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recipient, ok := s.targets[sender]
	return recipient, ok
}

func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets)
}
