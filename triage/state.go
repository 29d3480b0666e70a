package triage

import (
	"fmt"
	"strings"
)

// Participant is one person who introduced themselves during the call.
type Participant struct {
	Name string `json:"name"`
	Note string `json:"note,omitempty"`
}

// State is the conversation state shared by the front-door agent and the
// specialists of a triage flow.
type State struct {
	// Participants in introduction order, most recent last.
	Participants []Participant `json:"participants"`
	// Category is the classification chosen by the lead or the specialist.
	Category string `json:"category,omitempty"`
	// WantsTransfer is set once the user accepted a transfer.
	WantsTransfer bool `json:"wants_transfer"`
}

// AddParticipant appends a participant record and returns it.
func (s *State) AddParticipant(name, note string) Participant {
	p := Participant{Name: strings.TrimSpace(name), Note: strings.TrimSpace(note)}
	s.Participants = append(s.Participants, p)

	return p
}

// Summary renders the collected facts for agent instructions.
func (s *State) Summary() string {
	if len(s.Participants) == 0 && s.Category == "" {
		return "Nothing is known about the caller yet."
	}

	var b strings.Builder

	for i, p := range s.Participants {
		fmt.Fprintf(&b, "%d. %s", i+1, p.Name)

		if p.Note != "" {
			fmt.Fprintf(&b, ": %s", p.Note)
		}

		b.WriteByte('\n')
	}

	if s.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", s.Category)
	}

	return strings.TrimSuffix(b.String(), "\n")
}
