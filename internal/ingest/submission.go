package ingest

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownSlot is returned when a submission names a slot the manifest
// does not declare.
var ErrUnknownSlot = errors.New("unknown slot")

// Part is one submitted file. Size is the declared length; Payload is nil
// when the file was not read because it could never be accepted.
type Part struct {
	Filename string
	Size     int64
	Payload  []byte
}

// Submission maps slot names to the files a caller sent in one request.
// It lives for the duration of that request only.
type Submission struct {
	parts map[string]Part
}

// NewSubmission returns an empty submission.
func NewSubmission() *Submission {
	return &Submission{parts: make(map[string]Part)}
}

// Add records the file for slot, replacing any earlier one.
func (s *Submission) Add(slot, filename string, payload []byte) {
	if s.parts == nil {
		s.parts = make(map[string]Part)
	}
	s.parts[slot] = Part{Filename: filename, Size: int64(len(payload)), Payload: payload}
}

// AddUnread records a file by name and size only. The gateway rejects it
// without storing anything.
func (s *Submission) AddUnread(slot, filename string, size int64) {
	if s.parts == nil {
		s.parts = make(map[string]Part)
	}
	s.parts[slot] = Part{Filename: filename, Size: size}
}

// Part returns the file submitted for slot.
func (s *Submission) Part(slot string) (Part, bool) {
	if s == nil {
		return Part{}, false
	}
	p, ok := s.parts[slot]
	return p, ok
}

// Slots lists the submitted slot names in sorted order.
func (s *Submission) Slots() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.parts))
	for name := range s.parts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every submitted slot exists in m.
func (s *Submission) Validate(m *Manifest) error {
	for _, name := range s.Slots() {
		if _, ok := m.Slot(name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
		}
	}
	return nil
}
