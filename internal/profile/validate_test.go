package profile

import (
	"errors"
	"strings"
	"testing"
)

const validPayload = `{
  "list": [
    {
      "id": "p1",
      "name": "Work",
      "persona": "A focused professional",
      "tone": "professional",
      "styleGuidelines": ["Be brief"],
      "evolving_profile": {
        "topics": [{"name": "golang", "count": 2, "lastUsed": "2025-06-01T10:00:00Z"}],
        "lastUpdated": "2025-06-01T10:00:00Z",
        "usageCount": 2,
        "lastPrompt": "write a standup update"
      }
    }
  ],
  "activeProfileId": "p1"
}`

func TestParseConfig_Valid(t *testing.T) {
	cfg, err := ParseConfig([]byte(validPayload))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.List) != 1 {
		t.Fatalf("list len = %d, want 1", len(cfg.List))
	}
	p := cfg.List[0]
	if p.ID != "p1" || p.Name != "Work" || p.Tone != "professional" {
		t.Errorf("profile = %+v", p)
	}
	if len(p.Evolving.Topics) != 1 || p.Evolving.Topics[0].Count != 2 {
		t.Errorf("topics = %+v", p.Evolving.Topics)
	}
	if cfg.ActiveProfileID != "p1" {
		t.Errorf("activeProfileId = %q, want p1", cfg.ActiveProfileID)
	}
}

func TestParseConfig_NullActive(t *testing.T) {
	payload := `{"list": [], "activeProfileId": null}`
	cfg, err := ParseConfig([]byte(payload))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.ActiveProfileID != "" {
		t.Errorf("activeProfileId = %q, want empty", cfg.ActiveProfileID)
	}
}

func TestParseConfig_UnknownActiveCleared(t *testing.T) {
	payload := `{"list": [], "activeProfileId": "ghost"}`
	cfg, err := ParseConfig([]byte(payload))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.ActiveProfileID != "" {
		t.Errorf("activeProfileId = %q, want cleared", cfg.ActiveProfileID)
	}
}

func TestParseConfig_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"missing list", `{"activeProfileId": null}`},
		{"list wrong type", `{"list": "nope"}`},
		{"activeProfileId wrong type", `{"list": [], "activeProfileId": 42}`},
		{"profile missing id", `{"list": [{"name": "x", "persona": "p", "tone": "t", "styleGuidelines": [], "evolving_profile": {"topics": []}}]}`},
		{"profile missing persona", `{"list": [{"id": "p1", "name": "x", "tone": "t", "styleGuidelines": [], "evolving_profile": {"topics": []}}]}`},
		{"missing styleGuidelines", `{"list": [{"id": "p1", "name": "x", "persona": "p", "tone": "t", "evolving_profile": {"topics": []}}]}`},
		{"missing evolving_profile", `{"list": [{"id": "p1", "name": "x", "persona": "p", "tone": "t", "styleGuidelines": []}]}`},
		{"missing topics", `{"list": [{"id": "p1", "name": "x", "persona": "p", "tone": "t", "styleGuidelines": [], "evolving_profile": {"usageCount": 0}}]}`},
		{"topic empty name", `{"list": [{"id": "p1", "name": "x", "persona": "p", "tone": "t", "styleGuidelines": [], "evolving_profile": {"topics": [{"name": "", "count": 1}]}}]}`},
		{"topic negative count", `{"list": [{"id": "p1", "name": "x", "persona": "p", "tone": "t", "styleGuidelines": [], "evolving_profile": {"topics": [{"name": "go", "count": -1}]}}]}`},
		{"duplicate ids", `{"list": [
			{"id": "p1", "name": "x", "persona": "p", "tone": "t", "styleGuidelines": [], "evolving_profile": {"topics": []}},
			{"id": "p1", "name": "y", "persona": "p", "tone": "t", "styleGuidelines": [], "evolving_profile": {"topics": []}}
		]}`},
		{"bad storage location", `{"list": [], "profiles_storage_location": "cloud"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.payload))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParseConfig_StorageLocationValues(t *testing.T) {
	for _, loc := range []string{StorageSync, StorageLocal} {
		payload := `{"list": [], "profiles_storage_location": "` + loc + `"}`
		cfg, err := ParseConfig([]byte(payload))
		if err != nil {
			t.Errorf("location %q rejected: %v", loc, err)
			continue
		}
		if cfg.StorageLocation != loc {
			t.Errorf("location = %q, want %q", cfg.StorageLocation, loc)
		}
	}
}

func TestConfigMarshal_ActiveNull(t *testing.T) {
	data, err := Config{List: []Profile{}}.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	want := `"activeProfileId":null`
	if !strings.Contains(string(data), want) {
		t.Errorf("marshalled config %s does not contain %s", data, want)
	}
}

func TestConfigMarshal_RoundTripThroughParse(t *testing.T) {
	cfg := Config{
		List:            []Profile{mergeProfile("a", "Alpha", 2)},
		ActiveProfileID: "a",
	}
	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	parsed, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig of own output: %v", err)
	}
	if parsed.ActiveProfileID != "a" || len(parsed.List) != 1 {
		t.Errorf("round trip lost data: %+v", parsed)
	}
}
