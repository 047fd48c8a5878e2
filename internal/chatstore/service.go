// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
	"github.com/haoxiang-xu/PuPu-sub000/internal/storage"
)

// =============================================================================
// EVENTS & SUBSCRIPTION
// =============================================================================

// EventChange is published after every persisted mutation.
const EventChange = "change"

// Event is what subscribers receive: the event type, the opaque source
// tag the mutating caller supplied, and a deep-cloned snapshot of the
// store as persisted.
type Event struct {
	Type   string
	Source string
	Store  *model.Store
}

// Listener observes store changes. Listeners run synchronously on the
// mutating goroutine; a panicking listener is recovered and skipped.
type Listener func(Event)

// Snapshot is the bootstrap result: the full store plus the two pieces
// the main view needs immediately.
type Snapshot struct {
	Store      *model.Store
	ActiveChat *model.ChatSession
	Tree       *model.Tree
}

// Constants describes the durable slot contract.
type Constants struct {
	SlotKey       string
	SchemaVersion int
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is a chat store bound to one durable slot. All mutations are
// serialized by a mutex so no caller observes a partially-updated store;
// every public method is safe for concurrent use. Events are queued in
// the order their states reached the slot and delivered in that order,
// so the last event a subscriber sees always matches what is on disk.
type Service struct {
	mu     sync.Mutex
	slot   storage.Slot
	limits Limits

	subMu     sync.Mutex
	listeners map[int]Listener
	nextSub   int

	pubMu      sync.Mutex
	pubQueue   []Event
	publishing bool
}

// Option configures a Service at construction.
type Option func(*Service)

// WithLimits overrides the default eviction budgets.
func WithLimits(lim Limits) Option {
	return func(s *Service) { s.limits = lim }
}

// New creates a Service over the given slot.
func New(slot storage.Slot, opts ...Option) *Service {
	s := &Service{
		slot:      slot,
		limits:    DefaultLimits(),
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Constants reports the slot key and current schema version.
func (s *Service) Constants() Constants {
	return Constants{
		SlotKey:       s.slot.Key(),
		SchemaVersion: model.SchemaVersion,
	}
}

// =============================================================================
// READS
// =============================================================================

// GetStore returns a self-healing snapshot of the persisted store. The
// snapshot is a deep clone; nothing read from it aliases internal state.
func (s *Service) GetStore() *model.Store {
	s.mu.Lock()
	st := s.load()
	s.mu.Unlock()
	return st.Clone()
}

// Bootstrap normalizes whatever is on disk, persists the repaired form,
// publishes it, and returns the pieces the UI needs to render.
func (s *Service) Bootstrap(source string) Snapshot {
	st := s.mutate(source, func(*model.Store) bool { return true })
	return Snapshot{
		Store:      st,
		ActiveChat: st.ChatsByID[st.ActiveChatID],
		Tree:       st.Tree,
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (s *Service) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	}
}

// Refresh re-reads the slot and republishes a snapshot without writing.
// The watcher calls this when another process rewrites the slot.
func (s *Service) Refresh(source string) {
	s.mu.Lock()
	st := s.load()
	s.enqueue(Event{Type: EventChange, Source: source, Store: st})
	s.mu.Unlock()
	s.drainPublishQueue()
}

// =============================================================================
// MUTATION PIPELINE
// =============================================================================

// mutate is the shared pipeline behind every public mutation: read the
// persisted store, apply fn, re-normalize, evict, persist, publish, and
// return a deep clone of what was actually persisted. fn returns false
// to signal a no-op (invalid parameters); the unchanged normalized store
// is returned without persisting or publishing.
func (s *Service) mutate(source string, fn func(*model.Store) bool) *model.Store {
	s.mu.Lock()
	st := s.load()
	if !fn(st) {
		s.mu.Unlock()
		return st.Clone()
	}
	st = Normalize(st)
	st = EnforceBudget(st, s.limits)
	persisted := s.persist(st)
	s.enqueue(Event{Type: EventChange, Source: source, Store: persisted})
	s.mu.Unlock()

	s.drainPublishQueue()
	return persisted.Clone()
}

// load reads, decodes and normalizes the slot contents. Absent or
// corrupt data yields an empty valid store.
func (s *Service) load() *model.Store {
	data, err := s.slot.Read()
	if err != nil {
		return Normalize(&model.Store{})
	}
	return Normalize(Decode(data))
}

// persist writes the store to the slot. On failure it falls back to a
// minimal recovery store holding only the active chat, retries once, and
// returns whatever was actually handed to the slot so published events
// never diverge from disk.
func (s *Service) persist(st *model.Store) *model.Store {
	if data, err := json.Marshal(st); err == nil {
		if err := s.slot.Write(data); err == nil {
			return st
		}
	}

	recovery := s.recoveryStore(st)
	if data, err := json.Marshal(recovery); err == nil {
		_ = s.slot.Write(data)
	}
	return recovery
}

// recoveryStore keeps only the active chat, with its message list
// trimmed, so a quota-stressed slot still holds the conversation in view.
func (s *Service) recoveryStore(st *model.Store) *model.Store {
	minimal := &model.Store{
		ChatsByID:    map[string]*model.ChatSession{},
		ActiveChatID: st.ActiveChatID,
		UpdatedAt:    st.UpdatedAt,
		UI:           st.UI,
	}
	if session := st.ChatsByID[st.ActiveChatID]; session != nil {
		minimal.ChatsByID[session.ID] = session.Clone()
	}
	recovery := Normalize(minimal)
	trimActiveChat(recovery, s.limits.MaxActiveMessages)
	return recovery
}

// enqueue appends an event to the publish queue. Callers hold s.mu, so
// queue order matches the order in which states were committed to the
// slot.
func (s *Service) enqueue(ev Event) {
	s.pubMu.Lock()
	s.pubQueue = append(s.pubQueue, ev)
	s.pubMu.Unlock()
}

// drainPublishQueue delivers queued events in commit order. Only one
// goroutine drains at a time; the rest return immediately and leave
// their events to the active drainer, which keeps racing mutations from
// reaching subscribers out of order. A listener may call back into the
// service; an event produced inside a callback joins the queue and is
// delivered by the same drain loop after the current event.
func (s *Service) drainPublishQueue() {
	s.pubMu.Lock()
	if s.publishing {
		s.pubMu.Unlock()
		return
	}
	s.publishing = true
	for len(s.pubQueue) > 0 {
		ev := s.pubQueue[0]
		s.pubQueue = s.pubQueue[1:]
		s.pubMu.Unlock()
		s.fanOut(ev)
		s.pubMu.Lock()
	}
	s.publishing = false
	s.pubMu.Unlock()
}

// fanOut delivers one event to every listener in registration order,
// each with its own deep clone.
func (s *Service) fanOut(ev Event) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		deliver(fn, Event{Type: ev.Type, Source: ev.Source, Store: ev.Store.Clone()})
	}
}

func deliver(fn Listener, ev Event) {
	defer func() { _ = recover() }()
	fn(ev)
}
