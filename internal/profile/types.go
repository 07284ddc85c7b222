package profile

import (
	"encoding/json"
	"time"
)

// Topic is a short keyword tracked per profile with usage count and recency.
// Name is the identity key within a profile's topic list: comparison is
// trimmed and case-insensitive, but the display form keeps the casing of
// the first insertion.
type Topic struct {
	Name     string    `json:"name"`
	Count    int       `json:"count"`
	LastUsed time.Time `json:"lastUsed"`
}

// EvolvingProfile is the self-adjusting part of a profile: a ranked topic
// list plus usage counters, updated after each use.
type EvolvingProfile struct {
	Topics      []Topic   `json:"topics"`
	LastUpdated time.Time `json:"lastUpdated"`
	UsageCount  int       `json:"usageCount"`
	LastPrompt  string    `json:"lastPrompt"`
}

// Profile is a named persona/style configuration with an evolving topic list.
// ID is immutable once created: built-in profiles use a deterministic id
// derived from the name, user-created profiles get a random id.
type Profile struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Persona         string          `json:"persona"`
	Tone            string          `json:"tone"`
	StyleGuidelines []string        `json:"styleGuidelines"`
	Evolving        EvolvingProfile `json:"evolving_profile"`
}

// Storage location values accepted for the external peer's storage preference.
const (
	StorageSync  = "sync"
	StorageLocal = "local"
)

// Config is the full profile collection as persisted and synced.
// ActiveProfileID is empty when no profile is active; when set it must
// reference an id present in List.
type Config struct {
	List            []Profile `json:"list"`
	ActiveProfileID string    `json:"activeProfileId"`
	StorageLocation string    `json:"profiles_storage_location,omitempty"`
}

// MarshalJSON emits activeProfileId as JSON null when no profile is active,
// matching the sync file schema (string|null).
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	var active any
	if c.ActiveProfileID != "" {
		active = c.ActiveProfileID
	}
	return json.Marshal(struct {
		alias
		ActiveProfileID any `json:"activeProfileId"`
	}{alias(c), active})
}

// FindProfile returns the index of the profile with the given id, or -1.
func (c Config) FindProfile(id string) int {
	for i := range c.List {
		if c.List[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate freely without
// aliasing the cached collection.
func (c Config) Clone() Config {
	cp := c
	if c.List != nil {
		cp.List = make([]Profile, len(c.List))
		for i := range c.List {
			cp.List[i] = c.List[i].Clone()
		}
	}
	return cp
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	cp := p
	if p.StyleGuidelines != nil {
		cp.StyleGuidelines = make([]string, len(p.StyleGuidelines))
		copy(cp.StyleGuidelines, p.StyleGuidelines)
	}
	if p.Evolving.Topics != nil {
		cp.Evolving.Topics = make([]Topic, len(p.Evolving.Topics))
		copy(cp.Evolving.Topics, p.Evolving.Topics)
	}
	return cp
}
