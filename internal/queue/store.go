package queue

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Handle is the live reference to a subprocess attached to an item.
type Handle interface {
	Cancel()
}

type entry struct {
	item   Item
	handle Handle
}

// Store holds the ordered item collection. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry

	onChange func()
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithObserver registers fn to be called after every mutation that changed
// state. fn runs outside the store lock.
func WithObserver(fn func()) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// WithClock overrides the time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends item with status Queued. The descriptive fields are copied;
// progress and error fields are reset.
func (s *Store) Add(item Item) (Item, error) {
	name := strings.TrimSpace(item.ReleaseName)
	if name == "" {
		return Item{}, fmt.Errorf("add: release name required")
	}
	s.mu.Lock()
	if _, exists := s.entries[name]; exists {
		s.mu.Unlock()
		return Item{}, fmt.Errorf("add %q: %w", name, ErrDuplicateKey)
	}
	now := s.now()
	stored := Item{
		ReleaseName:  name,
		PackageName:  strings.TrimSpace(item.PackageName),
		DisplayName:  strings.TrimSpace(item.DisplayName),
		Status:       StatusQueued,
		DownloadPath: item.DownloadPath,
		AddedAt:      now,
		UpdatedAt:    now,
	}
	s.entries[name] = &entry{item: stored}
	s.order = append(s.order, name)
	s.mu.Unlock()

	s.notify()
	return stored.Clone(), nil
}

// Remove deletes the item. Items with an attached handle are rejected with
// ErrItemBusy.
func (s *Store) Remove(releaseName string) (Item, error) {
	s.mu.Lock()
	e, ok := s.entries[releaseName]
	if !ok {
		s.mu.Unlock()
		return Item{}, fmt.Errorf("remove %q: %w", releaseName, ErrNotFound)
	}
	if e.handle != nil {
		s.mu.Unlock()
		return Item{}, fmt.Errorf("remove %q: %w", releaseName, ErrItemBusy)
	}
	delete(s.entries, releaseName)
	for idx, name := range s.order {
		if name == releaseName {
			s.order = append(s.order[:idx], s.order[idx+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify()
	return e.item.Clone(), nil
}

// Find returns a copy of the item.
func (s *Store) Find(releaseName string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[releaseName]
	if !ok {
		return Item{}, false
	}
	return e.item.Clone(), true
}

// Update merges patch into the item and reports whether any field changed.
// Missing items are ignored and report false.
func (s *Store) Update(releaseName string, patch Patch) bool {
	s.mu.Lock()
	e, ok := s.entries[releaseName]
	if !ok {
		s.mu.Unlock()
		return false
	}
	next := e.item.Clone()
	patch.apply(&next)
	normalize(&next)
	if equalItems(e.item, next) {
		s.mu.Unlock()
		return false
	}
	next.UpdatedAt = s.now()
	e.item = next
	s.mu.Unlock()

	s.notify()
	return true
}

// All returns a copy of every item in queue order.
func (s *Store) All() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].item.Clone())
	}
	return out
}

// FirstWithStatus returns the earliest item in queue order with status.
func (s *Store) FirstWithStatus(status Status) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.order {
		if e := s.entries[name]; e.item.Status == status {
			return e.item.Clone(), true
		}
	}
	return Item{}, false
}

// Counts returns the number of items per status. Every known status is present.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		counts[status] = 0
	}
	for _, e := range s.entries {
		counts[e.item.Status]++
	}
	return counts
}

// AttachHandle attaches h to the item. Only one item may hold a handle at a
// time; attaching while another item holds one fails with ErrItemBusy.
func (s *Store) AttachHandle(releaseName string, h Handle) error {
	if h == nil {
		return fmt.Errorf("attach %q: nil handle", releaseName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[releaseName]
	if !ok {
		return fmt.Errorf("attach %q: %w", releaseName, ErrNotFound)
	}
	for name, other := range s.entries {
		if other.handle != nil && name != releaseName {
			return fmt.Errorf("attach %q: %q holds the active slot: %w", releaseName, name, ErrItemBusy)
		}
	}
	e.handle = h
	return nil
}

// DetachHandle removes and returns the handle attached to the item, if any.
func (s *Store) DetachHandle(releaseName string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[releaseName]
	if !ok {
		return nil
	}
	h := e.handle
	e.handle = nil
	return h
}

// Handle returns the handle attached to the item.
func (s *Store) Handle(releaseName string) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[releaseName]
	if !ok || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// ActiveRelease returns the release holding a handle, if any.
func (s *Store) ActiveRelease() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.order {
		if s.entries[name].handle != nil {
			return name, true
		}
	}
	return "", false
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (p Patch) apply(item *Item) {
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.Progress != nil {
		item.Progress = clampPercent(*p.Progress)
	}
	if p.ExtractProgress != nil {
		v := clampPercent(*p.ExtractProgress)
		item.ExtractProgress = &v
	}
	if p.Speed != nil {
		item.Speed = *p.Speed
	}
	if p.ETA != nil {
		item.ETA = *p.ETA
	}
	if p.Error != nil {
		item.Error = strings.TrimSpace(*p.Error)
	}
	if p.DownloadPath != nil {
		item.DownloadPath = *p.DownloadPath
	}
}

// normalize enforces the per-status field rules.
func normalize(item *Item) {
	switch item.Status {
	case StatusError, StatusInstallError:
		if item.Error == "" {
			item.Error = "unknown failure"
		}
	default:
		item.Error = ""
	}
	if item.Status != StatusExtracting && item.Status != StatusCompleted {
		item.ExtractProgress = nil
	}
	if item.Status != StatusDownloading {
		item.Speed = ""
		item.ETA = ""
	}
}

func equalItems(a, b Item) bool {
	if a.ExtractProgress == nil || b.ExtractProgress == nil {
		if a.ExtractProgress != b.ExtractProgress {
			return false
		}
	} else if *a.ExtractProgress != *b.ExtractProgress {
		return false
	}
	a.ExtractProgress, b.ExtractProgress = nil, nil
	return a == b
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
