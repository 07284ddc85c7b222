package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an operation references a profile id that is
// not in the collection.
var ErrNotFound = errors.New("profile not found")

// ConfigStore defines the persistence operations the Manager needs.
// Implemented by storage.Store. LoadConfig returns (nil, nil) when nothing
// has been persisted yet.
type ConfigStore interface {
	LoadConfig() ([]byte, error)
	SaveConfig(data []byte) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Manager owns the canonical profile collection: an in-memory cache over
// durable key-value persistence, plus change notification. A single mutex
// serializes every read-compute-save critical section so nearly
// simultaneous writes from the file and network channels cannot lose
// updates.
type Manager struct {
	store  ConfigStore
	clock  Clock
	logger *slog.Logger

	mu     sync.Mutex
	cached *Config

	subMu   sync.Mutex
	subs    map[int]chan ChangeEvent
	nextSub int
}

// NewManager creates a Manager over the given persistence.
func NewManager(store ConfigStore) *Manager {
	return NewManagerWithClock(store, realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ConfigStore, clock Clock) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		logger: slog.Default(),
		subs:   make(map[int]chan ChangeEvent),
	}
}

// GetAll returns the current collection, loading from persistence on first
// access and seeding built-in defaults if the store is empty.
func (m *Manager) GetAll() (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.loadLocked()
	if err != nil {
		return Config{}, err
	}
	return cfg.Clone(), nil
}

// GetActiveProfile returns the active profile, or ok=false when none is set.
func (m *Manager) GetActiveProfile() (Profile, bool, error) {
	cfg, err := m.GetAll()
	if err != nil {
		return Profile{}, false, err
	}
	idx := cfg.FindProfile(cfg.ActiveProfileID)
	if cfg.ActiveProfileID == "" || idx < 0 {
		return Profile{}, false, nil
	}
	return cfg.List[idx], true, nil
}

// Draft is the user-supplied part of a new profile.
type Draft struct {
	Name            string
	Persona         string
	Tone            string
	StyleGuidelines []string
}

// Add appends a new profile with a fresh id and an empty evolving profile.
func (m *Manager) Add(d Draft) (Profile, error) {
	p := Profile{
		ID:              uuid.New().String(),
		Name:            d.Name,
		Persona:         d.Persona,
		Tone:            d.Tone,
		StyleGuidelines: d.StyleGuidelines,
		Evolving:        EvolvingProfile{Topics: []Topic{}},
	}
	if p.StyleGuidelines == nil {
		p.StyleGuidelines = []string{}
	}

	err := m.mutate(OriginLocal, func(cfg *Config) error {
		cfg.List = append(cfg.List, p)
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Update shallow-merges the set fields into the identified profile.
// Nil fields are left untouched; the evolving profile is never writable
// through this path.
type Update struct {
	Name            *string
	Persona         *string
	Tone            *string
	StyleGuidelines *[]string
}

// UpdateProfile applies an Update to the profile with the given id.
func (m *Manager) UpdateProfile(id string, u Update) (Profile, error) {
	var updated Profile
	err := m.mutate(OriginLocal, func(cfg *Config) error {
		idx := cfg.FindProfile(id)
		if idx < 0 {
			return fmt.Errorf("updating %q: %w", id, ErrNotFound)
		}
		p := &cfg.List[idx]
		if u.Name != nil {
			p.Name = *u.Name
		}
		if u.Persona != nil {
			p.Persona = *u.Persona
		}
		if u.Tone != nil {
			p.Tone = *u.Tone
		}
		if u.StyleGuidelines != nil {
			p.StyleGuidelines = *u.StyleGuidelines
		}
		updated = p.Clone()
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	return updated, nil
}

// Delete removes the profile. Deleting the active profile clears the
// active id.
func (m *Manager) Delete(id string) error {
	return m.mutate(OriginLocal, func(cfg *Config) error {
		idx := cfg.FindProfile(id)
		if idx < 0 {
			return fmt.Errorf("deleting %q: %w", id, ErrNotFound)
		}
		cfg.List = append(cfg.List[:idx], cfg.List[idx+1:]...)
		if cfg.ActiveProfileID == id {
			cfg.ActiveProfileID = ""
		}
		return nil
	})
}

// SetActive marks the profile as active; an empty id clears the selection.
func (m *Manager) SetActive(id string) error {
	return m.mutate(OriginLocal, func(cfg *Config) error {
		if id != "" && cfg.FindProfile(id) < 0 {
			return fmt.Errorf("activating %q: %w", id, ErrNotFound)
		}
		cfg.ActiveProfileID = id
		return nil
	})
}

// Save unconditionally replaces the whole collection. The cache is updated
// before persistence so import/merge paths observe their own write
// immediately; the change event carries the caller-supplied origin.
func (m *Manager) Save(cfg Config, origin Origin) error {
	snapshot := cfg.Clone()

	m.mu.Lock()
	m.cached = &snapshot
	err := m.persistLocked(snapshot)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.publish(ChangeEvent{Config: snapshot.Clone(), Origin: origin})
	return nil
}

// Evolve records one use of a profile: topic evolution, usage counter,
// lastUpdated stamp, and the truncated prompt. A missing id is a silent
// no-op: evolution is best-effort telemetry and the profile may have been
// deleted since the refinement started.
func (m *Manager) Evolve(id, prompt string, topicNames []string) error {
	return m.mutate(OriginLocal, func(cfg *Config) error {
		idx := cfg.FindProfile(id)
		if idx < 0 {
			m.logger.Debug("evolve skipped, profile gone", "id", id)
			return errNoChange
		}
		ApplyEvolution(&cfg.List[idx], prompt, topicNames, m.clock.Now())
		return nil
	})
}

// Reset replaces the collection with the built-in defaults.
func (m *Manager) Reset() error {
	return m.Save(Defaults(), OriginLocal)
}

// errNoChange signals that a mutation decided to leave the collection
// untouched: nothing is persisted and no event fires.
var errNoChange = errors.New("no change")

// mutate runs read-current, compute-next, persist as one critical section,
// then fires exactly one change event.
func (m *Manager) mutate(origin Origin, fn func(cfg *Config) error) error {
	m.mu.Lock()
	cfg, err := m.loadLocked()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	next := cfg.Clone()
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	if err := m.persistLocked(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.cached = &next
	snapshot := next.Clone()
	m.mu.Unlock()

	m.publish(ChangeEvent{Config: snapshot, Origin: origin})
	return nil
}

func (m *Manager) loadLocked() (Config, error) {
	if m.cached != nil {
		return *m.cached, nil
	}

	data, err := m.store.LoadConfig()
	if err != nil {
		return Config{}, fmt.Errorf("loading profiles: %w", err)
	}

	var cfg Config
	if data == nil {
		cfg = Defaults()
		if err := m.persistLocked(cfg); err != nil {
			return Config{}, err
		}
		m.logger.Info("seeded built-in profiles", "count", len(cfg.List))
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing stored profiles: %w", err)
	}
	if cfg.List == nil {
		cfg.List = []Profile{}
	}

	m.cached = &cfg
	return cfg, nil
}

func (m *Manager) persistLocked(cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding profiles: %w", err)
	}
	if err := m.store.SaveConfig(data); err != nil {
		return fmt.Errorf("persisting profiles: %w", err)
	}
	return nil
}
