// Package store owns the in-memory state of every published view: the
// current payload, status bookkeeping, and the per-view publish throttle.
//
// A Store is an owned handle. HTTP handlers and watcher goroutines share one
// instance; tests create their own. Views are mutually independent — no
// operation on one view observes or blocks on another view's state.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sonnes/drishti/core"
)

// ErrNotFound is returned when a view, or the requested content kind for a
// view, does not exist.
var ErrNotFound = errors.New("not found")

// ViewKind tracks what a view currently holds. It starts at KindNone and
// upgrades monotonically to a concrete content kind on first real content.
type ViewKind string

const (
	KindNone     ViewKind = "none"
	KindPlot     ViewKind = "plot"
	KindTable    ViewKind = "table"
	KindArtifact ViewKind = "artifact"
)

// View is the immutable identity of a view.
type View struct {
	ID      string   `json:"view_id"`
	Section string   `json:"section"`
	Label   string   `json:"label"`
	Kind    ViewKind `json:"kind"`
}

// Status is the per-view bookkeeping shown in the UI.
type Status struct {
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
	LastDurationS *float64   `json:"last_duration_s,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// viewState is the mutable slot owned by one view. All fields are guarded by
// the store mutex; every write replaces a field wholesale so readers never
// observe a half-applied update.
type viewState struct {
	view View

	plot     []byte
	table    *core.TableSample
	artifact *core.Artifact

	status Status

	// lastPublishAt is the throttle clock: the timestamp of the last
	// accepted publish. Zero until the first publish is accepted.
	lastPublishAt time.Time
}

// Store holds all registered views keyed by canonical view id.
type Store struct {
	mu    sync.RWMutex
	views map[string]*viewState

	// activeID is the view selected by default in the UI.
	activeID string

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		views: make(map[string]*viewState),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeViewID returns the canonical id for a view. An explicit viewID
// wins; otherwise the id is "section:label" with both parts defaulting to
// "default".
func NormalizeViewID(viewID, section, label string) string {
	if viewID != "" {
		return viewID
	}
	if section == "" {
		section = "default"
	}
	if label == "" {
		label = "default"
	}
	return section + ":" + label
}

// RegisterView creates the view if absent and returns its canonical id.
// Registration is idempotent: re-registering merges metadata and upgrades
// the kind only when the new kind is a concrete content kind. It never
// erases existing content. When activateIfFirst is set and no view is
// active yet, the view becomes the active one.
func (s *Store) RegisterView(viewID, section, label string, kind ViewKind, activateIfFirst bool) string {
	id := NormalizeViewID(viewID, section, label)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.views[id]
	if !ok {
		if section == "" {
			section = "default"
		}
		if label == "" {
			label = "default"
		}
		st = &viewState{view: View{ID: id, Section: section, Label: label, Kind: KindNone}}
		s.views[id] = st
	}

	if kind != KindNone && kind != "" {
		st.view.Kind = kind
	}
	if section != "" && st.view.Section == "" {
		st.view.Section = section
	}
	if label != "" && st.view.Label == "" {
		st.view.Label = label
	}

	if activateIfFirst && s.activeID == "" {
		s.activeID = id
	}
	return id
}

// ActiveView returns the id of the active view, or "" when none is set.
func (s *Store) ActiveView() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ensure returns the state for id, creating a default registration if the
// view was never registered. The implicit registration uses the same
// metadata defaults as RegisterView. Callers must hold the write lock.
func (s *Store) ensure(id string) *viewState {
	st, ok := s.views[id]
	if !ok {
		st = &viewState{view: View{ID: id, Section: "default", Label: "default", Kind: KindNone}}
		s.views[id] = st
	}
	return st
}

// SetPlot replaces the view's content with PNG bytes and stamps the status.
func (s *Store) SetPlot(id string, png []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensure(id)
	st.plot = png
	st.view.Kind = KindPlot
	s.stampSuccess(st, nil)
}

// SetTable replaces the view's content with a table sample and stamps the status.
func (s *Store) SetTable(id string, sample core.TableSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensure(id)
	st.table = &sample
	st.view.Kind = KindTable
	s.stampSuccess(st, nil)
}

// SetArtifact replaces the view's content with a generic artifact and stamps
// the status.
func (s *Store) SetArtifact(id string, a core.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensure(id)
	a.ViewID = id
	st.artifact = &a
	st.view.Kind = KindArtifact
	s.stampSuccess(st, nil)
}

// stampSuccess updates LastUpdated and clears LastError. Callers must hold
// the write lock.
func (s *Store) stampSuccess(st *viewState, durationS *float64) {
	t := s.now()
	st.status.LastUpdated = &t
	if durationS != nil {
		st.status.LastDurationS = durationS
	}
	st.status.LastError = ""
}

// MarkSuccess records a successful refresh without touching content.
func (s *Store) MarkSuccess(id string, durationS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stampSuccess(s.ensure(id), &durationS)
}

// MarkError records a failed refresh. Content is left in place so a stale
// artifact stays visible alongside the error.
func (s *Store) MarkError(id string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensure(id)
	t := s.now()
	st.status.LastUpdated = &t
	st.status.LastError = message
}

// Plot returns the view's current PNG bytes.
func (s *Store) Plot(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	if !ok || st.plot == nil {
		return nil, fmt.Errorf("view %q has no plot: %w", id, ErrNotFound)
	}
	return st.plot, nil
}

// Table returns the view's current table sample.
func (s *Store) Table(id string) (core.TableSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	if !ok || st.table == nil {
		return core.TableSample{}, fmt.Errorf("view %q has no table: %w", id, ErrNotFound)
	}
	return *st.table, nil
}

// Artifact returns the view's current artifact.
func (s *Store) Artifact(id string) (core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	if !ok || st.artifact == nil {
		return core.Artifact{}, fmt.Errorf("view %q has no artifact: %w", id, ErrNotFound)
	}
	return *st.artifact, nil
}

// HasPlot reports whether the view currently holds plot bytes.
func (s *Store) HasPlot(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	return ok && st.plot != nil
}

// HasTable reports whether the view currently holds a table.
func (s *Store) HasTable(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	return ok && st.table != nil
}

// HasArtifact reports whether the view currently holds a generic artifact.
func (s *Store) HasArtifact(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	return ok && st.artifact != nil
}

// Latest returns whatever content the view holds, selected by its kind:
// plot bytes, table sample, or artifact.
func (s *Store) Latest(id string) (any, ViewKind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	if !ok {
		return nil, KindNone, fmt.Errorf("view %q: %w", id, ErrNotFound)
	}
	switch st.view.Kind {
	case KindPlot:
		if st.plot != nil {
			return st.plot, KindPlot, nil
		}
	case KindTable:
		if st.table != nil {
			return *st.table, KindTable, nil
		}
	case KindArtifact:
		if st.artifact != nil {
			return *st.artifact, KindArtifact, nil
		}
	}
	return nil, st.view.Kind, fmt.Errorf("view %q has no content: %w", id, ErrNotFound)
}

// Status returns a copy of the view's status record.
func (s *Store) Status(id string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	if !ok {
		return Status{}, fmt.Errorf("view %q: %w", id, ErrNotFound)
	}
	return st.status, nil
}

// Views returns all registered views sorted by (section, label) for stable
// UI display.
func (s *Store) Views() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]View, 0, len(s.views))
	for _, st := range s.views {
		out = append(out, st.view)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Section != out[j].Section {
			return out[i].Section < out[j].Section
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ShouldAcceptPublish reports whether a publish to the view at time now
// passes the throttle gate. The first publish for a view is always accepted.
// A publish strictly inside the window of the last accepted publish is
// rejected; at or past the window boundary it is accepted again. A nil
// limit means unconditional accept.
func (s *Store) ShouldAcceptPublish(id string, limit *time.Duration, now time.Time) bool {
	if limit == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.views[id]
	if !ok || st.lastPublishAt.IsZero() {
		return true
	}
	return !now.Before(st.lastPublishAt.Add(*limit))
}

// NotePublish records an accepted publish, restarting the throttle window.
// The throttle clock is monotonic non-decreasing: an older timestamp never
// rewinds it.
func (s *Store) NotePublish(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensure(id)
	if now.After(st.lastPublishAt) {
		st.lastPublishAt = now
	}
}

// Now returns the store's current clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}
