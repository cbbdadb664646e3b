package match

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/meridian-dds/meridian/core/guid"
)

// State is the match state of one (writer, reader) pair, spec section
// 3's invariant: a pair is in exactly one of these at a time.
type State uint8

const (
	Unmatched State = iota
	Matched
	Incompatible
)

// Candidate is one endpoint registered with the Matcher: a writer or a
// reader with its topic, type and QoS. Discovery (spec section 1's
// out-of-scope SPDP/SEDP) is responsible for learning of remote
// candidates and feeding them in via RegisterWriter/RegisterReader.
type Candidate struct {
	GUID     guid.GUID
	Topic    string
	TypeName string
	QoS      QoS
}

// Listener reacts to match state transitions. Implementations typically
// update the status taxonomy (status.MatchedStatus) and wake waitsets.
type Listener interface {
	OnMatched(writer, reader guid.GUID)
	OnUnmatched(writer, reader guid.GUID)
	OnIncompatible(writer, reader guid.GUID, offending PolicyID)
}

type pairKey struct {
	writer guid.GUID
	reader guid.GUID
}

// Matcher is the QoS-compatibility matching engine of spec section 4.6.
// It holds every locally known writer/reader candidate and the
// pairwise match state, notifying registered listeners on transitions.
type Matcher struct {
	mu sync.Mutex
	log *log.Logger

	writers   map[guid.GUID]Candidate
	readers   map[guid.GUID]Candidate
	states    map[pairKey]State
	listeners []Listener
}

// NewMatcher creates an empty Matcher.
func NewMatcher(mylog *log.Logger) *Matcher {
	return &Matcher{
		log:     mylog.WithPrefix("_MATCH_"),
		writers: make(map[guid.GUID]Candidate),
		readers: make(map[guid.GUID]Candidate),
		states:  make(map[pairKey]State),
	}
}

// AddListener registers l to receive future match transitions. Not
// retroactive: call before registering candidates to observe every
// transition, or inspect StateOf for already-matched pairs directly.
func (m *Matcher) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RegisterWriter adds (or replaces) a writer candidate and evaluates it
// against every known reader.
func (m *Matcher) RegisterWriter(c Candidate) {
	m.mu.Lock()
	m.writers[c.GUID] = c
	readers := m.snapshotReaders()
	m.mu.Unlock()
	for _, r := range readers {
		m.evaluate(c, r)
	}
}

// RegisterReader adds (or replaces) a reader candidate and evaluates it
// against every known writer.
func (m *Matcher) RegisterReader(c Candidate) {
	m.mu.Lock()
	m.readers[c.GUID] = c
	writers := m.snapshotWriters()
	m.mu.Unlock()
	for _, w := range writers {
		m.evaluate(w, c)
	}
}

func (m *Matcher) snapshotReaders() []Candidate {
	out := make([]Candidate, 0, len(m.readers))
	for _, r := range m.readers {
		out = append(out, r)
	}
	return out
}

func (m *Matcher) snapshotWriters() []Candidate {
	out := make([]Candidate, 0, len(m.writers))
	for _, w := range m.writers {
		out = append(out, w)
	}
	return out
}

// evaluate tests one writer/reader pair and fires listeners on a state
// transition. Unrelated topics/types never enter a tracked state.
func (m *Matcher) evaluate(w, r Candidate) {
	if w.Topic != r.Topic || w.TypeName != r.TypeName {
		return
	}
	key := pairKey{writer: w.GUID, reader: r.GUID}

	ok, offending := Compatible(w.QoS, r.QoS)

	m.mu.Lock()
	prev := m.states[key]
	var next State
	if ok {
		next = Matched
	} else {
		next = Incompatible
	}
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.states[key] = next
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	switch next {
	case Matched:
		m.log.Info("matched", "writer", w.GUID, "reader", r.GUID)
		for _, l := range listeners {
			l.OnMatched(w.GUID, r.GUID)
		}
	case Incompatible:
		m.log.Info("incompatible", "writer", w.GUID, "reader", r.GUID, "policy", offending)
		for _, l := range listeners {
			l.OnIncompatible(w.GUID, r.GUID, offending)
		}
	}
}

// UnregisterWriter removes a writer candidate, unmatching it from every
// reader it was matched with.
func (m *Matcher) UnregisterWriter(writerGUID guid.GUID) {
	m.mu.Lock()
	delete(m.writers, writerGUID)
	var toUnmatch []guid.GUID
	for k, st := range m.states {
		if k.writer == writerGUID && st == Matched {
			toUnmatch = append(toUnmatch, k.reader)
		}
	}
	for k := range m.states {
		if k.writer == writerGUID {
			delete(m.states, k)
		}
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, readerGUID := range toUnmatch {
		for _, l := range listeners {
			l.OnUnmatched(writerGUID, readerGUID)
		}
	}
}

// UnregisterReader removes a reader candidate, unmatching it from
// every writer it was matched with.
func (m *Matcher) UnregisterReader(readerGUID guid.GUID) {
	m.mu.Lock()
	delete(m.readers, readerGUID)
	var toUnmatch []guid.GUID
	for k, st := range m.states {
		if k.reader == readerGUID && st == Matched {
			toUnmatch = append(toUnmatch, k.writer)
		}
	}
	for k := range m.states {
		if k.reader == readerGUID {
			delete(m.states, k)
		}
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, writerGUID := range toUnmatch {
		for _, l := range listeners {
			l.OnUnmatched(writerGUID, readerGUID)
		}
	}
}

// StateOf reports the match state of a (writer, reader) pair.
func (m *Matcher) StateOf(writerGUID, readerGUID guid.GUID) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[pairKey{writer: writerGUID, reader: readerGUID}]
}

// MatchSource is the external collaborator that discovers remote
// endpoints and feeds them to a Matcher; spec section 1 places SPDP/SEDP
// itself out of scope.
type MatchSource interface {
	// Subscribe registers m to receive future candidates; implementations
	// call RegisterWriter/RegisterReader/UnregisterWriter/UnregisterReader
	// on m as discovery events arrive.
	Subscribe(m *Matcher)
}
