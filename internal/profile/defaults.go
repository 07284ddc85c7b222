package profile

import "strings"

// BuiltinIDPrefix marks profiles seeded by stylist itself. Their ids are
// deterministic so two fresh installs produce identical collections that
// merge cleanly.
const BuiltinIDPrefix = "builtin-"

// BuiltinID derives the deterministic id for a built-in profile name.
func BuiltinID(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	return BuiltinIDPrefix + slug
}

// Defaults returns the built-in profile collection used to seed an empty
// store. No profile is active until the user picks one.
func Defaults() Config {
	names := []struct {
		name       string
		persona    string
		tone       string
		guidelines []string
	}{
		{
			name:    "Professional",
			persona: "A clear, direct communicator writing for colleagues and clients",
			tone:    "professional",
			guidelines: []string{
				"Lead with the main point",
				"Prefer short sentences and active voice",
				"Avoid jargon unless the audience expects it",
			},
		},
		{
			name:    "Casual",
			persona: "A friendly voice for informal messages and social posts",
			tone:    "casual",
			guidelines: []string{
				"Keep it light and conversational",
				"Contractions are fine",
			},
		},
		{
			name:    "Technical",
			persona: "A precise technical writer documenting systems and decisions",
			tone:    "neutral",
			guidelines: []string{
				"Be exact about names, versions, and behavior",
				"Use examples over abstractions",
				"State assumptions explicitly",
			},
		},
	}

	cfg := Config{List: make([]Profile, 0, len(names))}
	for _, n := range names {
		cfg.List = append(cfg.List, Profile{
			ID:              BuiltinID(n.name),
			Name:            n.name,
			Persona:         n.persona,
			Tone:            n.tone,
			StyleGuidelines: n.guidelines,
			Evolving:        EvolvingProfile{Topics: []Topic{}},
		})
	}
	return cfg
}
