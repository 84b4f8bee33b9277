package sequence

// Entry is a step together with its failure policy.
type Entry struct {
	step        Step
	criticality Criticality
}

// Step returns the step.
func (e Entry) Step() Step {
	return e.step
}

// Criticality returns the failure policy of the step.
func (e Entry) Criticality() Criticality {
	return e.criticality
}

// Sequence is an ordered list of steps executed strictly in order.
// It is built fresh for every invocation and never persisted.
type Sequence struct {
	entries []Entry
	index   map[string]int
}

// New creates an empty Sequence.
func New() *Sequence {
	return &Sequence{
		entries: make([]Entry, 0),
		index:   make(map[string]int),
	}
}

// Add appends a critical step.
func (s *Sequence) Add(step Step) error {
	return s.AddWithCriticality(step, Critical)
}

// AddBestEffort appends a step whose failure does not abort the run.
func (s *Sequence) AddBestEffort(step Step) error {
	return s.AddWithCriticality(step, BestEffort)
}

// AddWithCriticality appends a step with an explicit failure policy.
func (s *Sequence) AddWithCriticality(step Step, criticality Criticality) error {
	id := step.ID().String()
	if _, exists := s.index[id]; exists {
		return NewStepDuplicateError(id)
	}
	if criticality == "" {
		criticality = Critical
	}
	s.index[id] = len(s.entries)
	s.entries = append(s.entries, Entry{step: step, criticality: criticality})
	return nil
}

// Len returns the number of steps.
func (s *Sequence) Len() int {
	return len(s.entries)
}

// IsEmpty returns true if there are no steps.
func (s *Sequence) IsEmpty() bool {
	return len(s.entries) == 0
}

// Entries returns all entries in execution order.
func (s *Sequence) Entries() []Entry {
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Get returns the entry with the given ID.
func (s *Sequence) Get(id StepID) (Entry, bool) {
	i, ok := s.index[id.String()]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Filter returns a new Sequence with only the entries accepted by keep,
// preserving order.
func (s *Sequence) Filter(keep func(Entry) bool) *Sequence {
	filtered := New()
	for _, e := range s.entries {
		if keep(e) {
			_ = filtered.AddWithCriticality(e.step, e.criticality)
		}
	}
	return filtered
}
