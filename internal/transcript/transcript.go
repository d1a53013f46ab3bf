// Package transcript reassembles transcription results, which may complete in
// any order, into a transcript in recording order.
package transcript

import (
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

type slotState int

const (
	pending slotState = iota
	filled
	failed
)

type slot struct {
	state slotState
	text  string
}

// Stats counts slots of the current session by state. Pending is the number
// of holes below the highest sequence seen so far.
type Stats struct {
	Filled  int
	Failed  int
	Pending int
	Stale   int
}

// Assembler owns the transcript of exactly one session at a time.
type Assembler struct {
	mu       sync.Mutex
	session  uuid.UUID
	slots    []slot
	stale    int
	revision uint64
	changed  chan struct{} // closed and replaced on every change
}

func NewAssembler() *Assembler {
	return &Assembler{
		changed: make(chan struct{}),
	}
}

// Reset clears every slot and makes session the only one whose results are
// accepted. Results still in flight for the previous session are discarded
// when they arrive.
func (a *Assembler) Reset(session uuid.UUID) {
	a.mu.Lock()
	a.session = session
	a.slots = nil
	a.stale = 0
	a.changedLocked()
	a.mu.Unlock()
}

// OnResult applies r and reports whether it was accepted.
func (a *Assembler) OnResult(r transcriber.Result) bool {
	a.mu.Lock()

	if r.Session != a.session {
		a.stale++
		a.mu.Unlock()
		log.Printf("Transcript: discarding result for chunk %d of stale session %s", r.Sequence, r.Session)
		return false
	}
	if r.Sequence < 0 {
		a.mu.Unlock()
		log.Printf("Transcript: discarding result with negative sequence %d", r.Sequence)
		return false
	}

	for len(a.slots) <= r.Sequence {
		a.slots = append(a.slots, slot{})
	}

	s := &a.slots[r.Sequence]
	switch {
	case !r.Failed():
		*s = slot{state: filled, text: r.Text}
	case s.state == filled:
		// a success already landed for this sequence; keep it
	default:
		s.state = failed
	}
	a.changedLocked()
	a.mu.Unlock()

	return true
}

// CurrentTranscript returns the settled prefix of the transcript: filled
// slots in ascending sequence order, skipping failed ones and stopping at the
// first slot whose result has not arrived yet. Blank fragments are omitted.
func (a *Assembler) CurrentTranscript() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.slots))
	for _, s := range a.slots {
		if s.state == pending {
			break
		}
		if s.state == filled {
			if text := strings.TrimSpace(s.text); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}

// Populated returns every filled slot in ascending sequence order, including
// those that follow a pending hole.
func (a *Assembler) Populated() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.slots))
	for _, s := range a.slots {
		if s.state != filled {
			continue
		}
		if text := strings.TrimSpace(s.text); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func (a *Assembler) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Stats{Stale: a.stale}
	for _, s := range a.slots {
		switch s.state {
		case filled:
			st.Filled++
		case failed:
			st.Failed++
		default:
			st.Pending++
		}
	}
	return st
}

// Revision increases on every Reset and every accepted result.
func (a *Assembler) Revision() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revision
}

// Changes returns a channel that is closed on the next Reset or accepted
// result. Fetch it before reading state to avoid missing a change.
func (a *Assembler) Changes() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.changed
}

func (a *Assembler) changedLocked() {
	a.revision++
	close(a.changed)
	a.changed = make(chan struct{})
}
