package profile

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type mockStore struct {
	mu        sync.Mutex
	data      []byte
	saveCalls int
	failSave  error
	failLoad  error
}

func (s *mockStore) LoadConfig() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad != nil {
		return nil, s.failLoad
	}
	return s.data, nil
}

func (s *mockStore) SaveConfig(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.saveCalls++
	s.data = data
	return nil
}

func (s *mockStore) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var managerNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *mockStore) {
	t.Helper()
	store := &mockStore{}
	return NewManagerWithClock(store, fixedClock{managerNow}), store
}

func TestGetAll_SeedsDefaults(t *testing.T) {
	m, store := newTestManager(t)

	cfg, err := m.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(cfg.List) != 3 {
		t.Fatalf("seeded %d profiles, want 3", len(cfg.List))
	}
	for _, p := range cfg.List {
		if p.ID != BuiltinID(p.Name) {
			t.Errorf("profile %s id = %q, want deterministic %q", p.Name, p.ID, BuiltinID(p.Name))
		}
	}
	if cfg.ActiveProfileID != "" {
		t.Errorf("activeProfileId = %q, want empty on fresh seed", cfg.ActiveProfileID)
	}
	if store.saves() != 1 {
		t.Errorf("seed persisted %d times, want 1", store.saves())
	}
}

func TestGetActiveProfile(t *testing.T) {
	m, _ := newTestManager(t)

	if _, ok, err := m.GetActiveProfile(); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v, want no active profile", ok, err)
	}

	id := BuiltinID("Casual")
	if err := m.SetActive(id); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	p, ok, err := m.GetActiveProfile()
	if err != nil || !ok {
		t.Fatalf("after SetActive: ok=%v err=%v", ok, err)
	}
	if p.ID != id {
		t.Errorf("active id = %q, want %q", p.ID, id)
	}
}

func TestAdd(t *testing.T) {
	m, _ := newTestManager(t)
	events, cancel := m.Subscribe()
	defer cancel()

	p, err := m.Add(Draft{Name: "Blog", Persona: "A personal blogger", Tone: "casual"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if p.ID == "" {
		t.Error("Add assigned empty id")
	}
	if p.StyleGuidelines == nil || p.Evolving.Topics == nil {
		t.Error("Add left nil slices; wire schema requires arrays")
	}

	cfg, _ := m.GetAll()
	if cfg.FindProfile(p.ID) < 0 {
		t.Error("added profile not in collection")
	}

	ev := <-events
	if ev.Origin != OriginLocal {
		t.Errorf("event origin = %q, want local", ev.Origin)
	}
	if ev.Config.FindProfile(p.ID) < 0 {
		t.Error("event snapshot missing added profile")
	}
}

func TestUpdateProfile(t *testing.T) {
	m, _ := newTestManager(t)
	id := BuiltinID("Technical")

	name := "Docs"
	updated, err := m.UpdateProfile(id, Update{Name: &name})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Name != "Docs" {
		t.Errorf("name = %q, want Docs", updated.Name)
	}
	if updated.Persona == "" || updated.Tone == "" {
		t.Error("unset fields were cleared instead of kept")
	}
}

func TestUpdateProfile_NotFound(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.UpdateProfile("ghost", Update{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDelete_ClearsActive(t *testing.T) {
	m, _ := newTestManager(t)
	id := BuiltinID("Professional")
	if err := m.SetActive(id); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	if err := m.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	cfg, _ := m.GetAll()
	if cfg.FindProfile(id) >= 0 {
		t.Error("deleted profile still present")
	}
	if cfg.ActiveProfileID != "" {
		t.Errorf("activeProfileId = %q, want cleared after deleting active", cfg.ActiveProfileID)
	}
}

func TestDelete_NotFound(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Delete("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSetActive_Validates(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.SetActive("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	// Empty id clears the selection.
	if err := m.SetActive(""); err != nil {
		t.Errorf("clearing selection: %v", err)
	}
}

func TestSave_CarriesOrigin(t *testing.T) {
	m, _ := newTestManager(t)
	events, cancel := m.Subscribe()
	defer cancel()

	cfg := Config{List: []Profile{mergeProfile("x", "External", 1)}, ActiveProfileID: "x"}
	if err := m.Save(cfg, OriginNetwork); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ev := <-events
	if ev.Origin != OriginNetwork {
		t.Errorf("origin = %q, want network", ev.Origin)
	}
	got, _ := m.GetAll()
	if len(got.List) != 1 || got.List[0].ID != "x" {
		t.Errorf("collection = %+v, want replaced wholesale", got)
	}
}

func TestSave_PersistFailure(t *testing.T) {
	store := &mockStore{failSave: errors.New("disk full")}
	m := NewManagerWithClock(store, fixedClock{managerNow})
	events, cancel := m.Subscribe()
	defer cancel()

	if err := m.Save(Config{List: []Profile{}}, OriginLocal); err == nil {
		t.Fatal("expected persist error")
	}
	select {
	case ev := <-events:
		t.Errorf("event fired despite persist failure: %+v", ev)
	default:
	}
}

func TestEvolve(t *testing.T) {
	m, _ := newTestManager(t)
	id := BuiltinID("Casual")

	if err := m.Evolve(id, "draft a tweet about gophers", []string{"golang", "social"}); err != nil {
		t.Fatalf("Evolve: %v", err)
	}

	cfg, _ := m.GetAll()
	p := cfg.List[cfg.FindProfile(id)]
	if p.Evolving.UsageCount != 1 {
		t.Errorf("usageCount = %d, want 1", p.Evolving.UsageCount)
	}
	if !p.Evolving.LastUpdated.Equal(managerNow) {
		t.Errorf("lastUpdated = %v, want injected clock time %v", p.Evolving.LastUpdated, managerNow)
	}
	if p.Evolving.LastPrompt != "draft a tweet about gophers" {
		t.Errorf("lastPrompt = %q", p.Evolving.LastPrompt)
	}
	if len(p.Evolving.Topics) != 2 {
		t.Errorf("topics = %+v, want 2 entries", p.Evolving.Topics)
	}
}

func TestEvolve_MissingProfileIsSilentNoop(t *testing.T) {
	m, store := newTestManager(t)
	if _, err := m.GetAll(); err != nil { // force seed
		t.Fatal(err)
	}
	events, cancel := m.Subscribe()
	defer cancel()
	savesBefore := store.saves()

	if err := m.Evolve("ghost", "prompt", []string{"topic"}); err != nil {
		t.Fatalf("Evolve on missing id returned error: %v", err)
	}
	if store.saves() != savesBefore {
		t.Error("no-op evolve persisted")
	}
	select {
	case ev := <-events:
		t.Errorf("no-op evolve fired event: %+v", ev)
	default:
	}
}

func TestMutationsFireExactlyOneEvent(t *testing.T) {
	m, _ := newTestManager(t)
	events, cancel := m.Subscribe()
	defer cancel()

	p, err := m.Add(Draft{Name: "One", Persona: "p", Tone: "neutral"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetActive(p.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(p.ID); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-events:
		default:
			t.Fatalf("mutation %d fired no event", i)
		}
	}
	select {
	case ev := <-events:
		t.Errorf("extra event: %+v", ev)
	default:
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	m, _ := newTestManager(t)
	events, cancel := m.Subscribe()
	cancel()
	cancel() // idempotent

	if _, err := m.Add(Draft{Name: "X", Persona: "p", Tone: "neutral"}); err != nil {
		t.Fatal(err)
	}

	if _, ok := <-events; ok {
		t.Error("received event on cancelled subscription")
	}
}

func TestManager_ReloadsFromPersistence(t *testing.T) {
	store := &mockStore{}
	m1 := NewManagerWithClock(store, fixedClock{managerNow})
	p, err := m1.Add(Draft{Name: "Persisted", Persona: "p", Tone: "neutral"})
	if err != nil {
		t.Fatal(err)
	}

	// A second manager over the same store sees the write.
	m2 := NewManagerWithClock(store, fixedClock{managerNow})
	cfg, err := m2.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FindProfile(p.ID) < 0 {
		t.Error("second manager did not load persisted profile")
	}
}

func TestReset(t *testing.T) {
	m, _ := newTestManager(t)
	p, err := m.Add(Draft{Name: "Extra", Persona: "p", Tone: "neutral"})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	cfg, _ := m.GetAll()
	if cfg.FindProfile(p.ID) >= 0 {
		t.Error("reset kept user profile")
	}
	if len(cfg.List) != 3 {
		t.Errorf("reset collection has %d profiles, want 3 defaults", len(cfg.List))
	}
}

func TestGetAll_ReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t)

	cfg, err := m.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	cfg.List[0].Name = "scribbled"

	again, _ := m.GetAll()
	if again.List[0].Name == "scribbled" {
		t.Error("GetAll aliases the cached collection")
	}
}
