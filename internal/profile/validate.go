package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is the sentinel for any malformed sync payload: wrong
// JSON, missing fields, or wrong types. Malformed input never reaches the
// store; callers check with errors.Is.
var ErrInvalidConfig = errors.New("invalid profiles payload")

// Wire types use pointers so absent and mistyped fields are distinguishable
// from zero values during validation.
type wireConfig struct {
	List            *[]wireProfile `json:"list"`
	ActiveProfileID *string        `json:"activeProfileId"`
	StorageLocation string         `json:"profiles_storage_location"`
}

type wireProfile struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Persona         string        `json:"persona"`
	Tone            string        `json:"tone"`
	StyleGuidelines *[]string     `json:"styleGuidelines"`
	Evolving        *wireEvolving `json:"evolving_profile"`
}

type wireEvolving struct {
	Topics      *[]Topic  `json:"topics"`
	LastUpdated time.Time `json:"lastUpdated"`
	UsageCount  int       `json:"usageCount"`
	LastPrompt  string    `json:"lastPrompt"`
}

// ParseConfig parses and validates a sync payload. Any violation rejects
// the whole payload with an error wrapping ErrInvalidConfig.
//
// An activeProfileId that references no profile in the list is cleared
// rather than rejected: the id invariant is restored, not enforced on the
// remote peer.
func ParseConfig(data []byte) (Config, error) {
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if w.List == nil {
		return Config{}, fmt.Errorf("%w: missing list array", ErrInvalidConfig)
	}

	cfg := Config{
		List:            make([]Profile, 0, len(*w.List)),
		StorageLocation: w.StorageLocation,
	}
	if w.ActiveProfileID != nil {
		cfg.ActiveProfileID = *w.ActiveProfileID
	}

	for i, wp := range *w.List {
		if err := validateProfile(wp); err != nil {
			return Config{}, fmt.Errorf("%w: profile %d: %v", ErrInvalidConfig, i, err)
		}
		p := Profile{
			ID:              wp.ID,
			Name:            wp.Name,
			Persona:         wp.Persona,
			Tone:            wp.Tone,
			StyleGuidelines: *wp.StyleGuidelines,
			Evolving: EvolvingProfile{
				Topics:      *wp.Evolving.Topics,
				LastUpdated: wp.Evolving.LastUpdated,
				UsageCount:  wp.Evolving.UsageCount,
				LastPrompt:  wp.Evolving.LastPrompt,
			},
		}
		if cfg.FindProfile(p.ID) >= 0 {
			return Config{}, fmt.Errorf("%w: duplicate profile id %q", ErrInvalidConfig, p.ID)
		}
		cfg.List = append(cfg.List, p)
	}

	if cfg.ActiveProfileID != "" && cfg.FindProfile(cfg.ActiveProfileID) < 0 {
		cfg.ActiveProfileID = ""
	}
	if cfg.StorageLocation != "" && cfg.StorageLocation != StorageSync && cfg.StorageLocation != StorageLocal {
		return Config{}, fmt.Errorf("%w: unknown profiles_storage_location %q", ErrInvalidConfig, cfg.StorageLocation)
	}

	return cfg, nil
}

func validateProfile(wp wireProfile) error {
	switch {
	case wp.ID == "":
		return errors.New("missing id")
	case wp.Name == "":
		return errors.New("missing name")
	case wp.Persona == "":
		return errors.New("missing persona")
	case wp.Tone == "":
		return errors.New("missing tone")
	case wp.StyleGuidelines == nil:
		return errors.New("styleGuidelines must be an array")
	case wp.Evolving == nil:
		return errors.New("missing evolving_profile")
	case wp.Evolving.Topics == nil:
		return errors.New("evolving_profile.topics must be an array")
	}
	for _, t := range *wp.Evolving.Topics {
		if t.Name == "" {
			return errors.New("topic with empty name")
		}
		if t.Count < 0 {
			return fmt.Errorf("topic %q has negative count", t.Name)
		}
	}
	return nil
}
