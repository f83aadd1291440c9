package session

import "sync"

// AnswerStore holds one session's in-memory answers and the marked-for-review
// set. Keys are original question IDs; values use the per-type answer
// encodings stored in attempts. Safe for concurrent use.
type AnswerStore struct {
	mu      sync.Mutex
	answers map[string]string
	marked  map[string]struct{}
	onSaved func(questionID string)
}

// NewAnswerStore builds an empty store. onSaved fires after every SetAnswer,
// outside the store lock; nil disables the notification.
func NewAnswerStore(onSaved func(questionID string)) *AnswerStore {
	return &AnswerStore{
		answers: make(map[string]string),
		marked:  make(map[string]struct{}),
		onSaved: onSaved,
	}
}

// SetAnswer replaces the stored answer unconditionally, including with an
// empty string (a cleared selection).
func (s *AnswerStore) SetAnswer(questionID, answer string) {
	s.mu.Lock()
	s.answers[questionID] = answer
	s.mu.Unlock()
	if s.onSaved != nil {
		s.onSaved(questionID)
	}
}

// Answer returns the stored answer for a question, if any.
func (s *AnswerStore) Answer(questionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// ToggleMark flips the marked-for-review flag and returns the new state.
func (s *AnswerStore) ToggleMark(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.marked[questionID]; ok {
		delete(s.marked, questionID)
		return false
	}
	s.marked[questionID] = struct{}{}
	return true
}

// IsMarked reports whether a question is marked for review.
func (s *AnswerStore) IsMarked(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.marked[questionID]
	return ok
}

// FilledCount returns the number of non-empty answers.
func (s *AnswerStore) FilledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.answers {
		if a != "" {
			n++
		}
	}
	return n
}

// Snapshot copies the current answers map.
func (s *AnswerStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Marked lists the marked question IDs in no particular order.
func (s *AnswerStore) Marked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.marked))
	for id := range s.marked {
		out = append(out, id)
	}
	return out
}

// Restore loads previously autosaved answers, e.g. after a page reload.
// It never fires the saved notification.
func (s *AnswerStore) Restore(answers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range answers {
		s.answers[k] = v
	}
}
