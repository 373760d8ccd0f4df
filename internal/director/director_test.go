package director

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arcsong/arcsong/internal/episode"
	"github.com/arcsong/arcsong/internal/ledger"
	"github.com/arcsong/arcsong/internal/sessionstore"
	llmmock "github.com/arcsong/arcsong/pkg/provider/llm/mock"
)

// memorySink records Save calls for assertions.
type memorySink struct {
	mu    sync.Mutex
	saves map[string][]string
	err   error
}

func (m *memorySink) Save(_ context.Context, sessionID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.saves == nil {
		m.saves = make(map[string][]string)
	}
	m.saves[sessionID] = append(m.saves[sessionID], content)
	return nil
}

// conflictStore wraps a MemStore and fails the first n Update calls with a
// version conflict.
type conflictStore struct {
	*sessionstore.MemStore
	remaining int
}

func (c *conflictStore) Update(ctx context.Context, s *sessionstore.Session) error {
	if c.remaining > 0 {
		c.remaining--
		return sessionstore.ErrVersionConflict
	}
	return c.MemStore.Update(ctx, s)
}

type fixture struct {
	store    sessionstore.Store
	ledger   *ledger.MemLedger
	provider *llmmock.Provider
	catalog  *episode.MemCatalog
	memory   *memorySink
	director *Director
}

func newFixture(t *testing.T, provider *llmmock.Provider, store sessionstore.Store, led *ledger.MemLedger) *fixture {
	t.Helper()
	if store == nil {
		store = sessionstore.NewMemStore()
	}
	if led == nil {
		led = ledger.NewMemLedger(nil)
	}
	catalog := episode.NewMemCatalog()
	sink := &memorySink{}

	d, err := New(Config{
		Sessions:   store,
		Catalog:    catalog,
		Guidance:   NewGuidanceGenerator(provider, 0, nil, testLogger()),
		Evaluation: NewEvaluationEngine(provider, 0, nil, testLogger()),
		Gate:       NewResourceGate(led, testLogger()),
		Memory:     sink,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{store: store, ledger: led, provider: provider, catalog: catalog, memory: sink, director: d}
}

func (f *fixture) createSession(t *testing.T, episodeID string) *sessionstore.Session {
	t.Helper()
	sess := &sessionstore.Session{ID: "sess-1", UserID: "user-1", EpisodeID: episodeID}
	if err := f.store.Create(context.Background(), sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sess
}

func TestNew_RequiresCollaborators(t *testing.T) {
	provider := llmmock.New("ok")
	valid := Config{
		Sessions:   sessionstore.NewMemStore(),
		Guidance:   NewGuidanceGenerator(provider, 0, nil, testLogger()),
		Evaluation: NewEvaluationEngine(provider, 0, nil, testLogger()),
		Gate:       NewResourceGate(ledger.NewMemLedger(nil), testLogger()),
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing sessions", func(c *Config) { c.Sessions = nil }},
		{"missing guidance", func(c *Config) { c.Guidance = nil }},
		{"missing evaluation", func(c *Config) { c.Evaluation = nil }},
		{"missing gate", func(c *Config) { c.Gate = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New accepted an incomplete config")
			}
		})
	}

	if _, err := New(valid); err != nil {
		t.Errorf("New rejected a complete config: %v", err)
	}
}

func TestRunExchange_AdvancesTurnAndPersists(t *testing.T) {
	f := newFixture(t, llmmock.New("The scene holds. SIGNAL: [visual: none] [status: going]"), nil, nil)
	f.createSession(t, "")

	res, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2))
	if err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	if res.Session.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", res.Session.TurnCount)
	}
	if res.Session.State != sessionstore.StateActive {
		t.Errorf("state = %q, want active", res.Session.State)
	}

	stored, err := f.store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.TurnCount != 1 || stored.Director.LastStatus != "going" || stored.Director.LastEvaluatedTurn != 1 {
		t.Errorf("persisted session = %+v", stored)
	}
	if stored.Version != 2 {
		t.Errorf("version = %d, want 2 after one update", stored.Version)
	}
}

func TestRunExchange_SemanticCompletion(t *testing.T) {
	f := newFixture(t, llmmock.New("The question is answered. SIGNAL: [visual: none] [status: done]"), nil, nil)
	f.createSession(t, "")

	res, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2))
	if err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	if !res.Actions.SuggestNext {
		t.Error("SuggestNext not set on a done status")
	}
	if res.Session.State != sessionstore.StateComplete {
		t.Errorf("state = %q, want complete", res.Session.State)
	}
	if res.Session.CompletionTrigger != sessionstore.TriggerSemantic {
		t.Errorf("trigger = %q, want semantic", res.Session.CompletionTrigger)
	}

	// A completed session accepts no further exchanges.
	if _, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2)); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("err = %v, want ErrSessionComplete", err)
	}
}

func TestRunExchange_TurnLimitCompletion(t *testing.T) {
	f := newFixture(t, llmmock.New("SIGNAL: [visual: none] [status: going]"), nil, nil)
	f.catalog.Put(episode.Config{ID: "short", TurnBudget: 2, SceneMode: episode.SceneOff})
	f.createSession(t, "short")

	res, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2))
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if res.Actions.SuggestNext {
		t.Error("episode suggested ending before the budget")
	}

	res, err = f.director.RunExchange(context.Background(), "sess-1", makeHistory(4))
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !res.Actions.SuggestNext {
		t.Error("budget turn did not suggest ending")
	}
	if res.Session.CompletionTrigger != sessionstore.TriggerTurnLimit {
		t.Errorf("trigger = %q, want turn_limit", res.Session.CompletionTrigger)
	}
}

func TestRunExchange_InsufficientSparksDowngrades(t *testing.T) {
	f := newFixture(t, llmmock.New("SIGNAL: [visual: character] [status: going] [hint: her face in the doorway]"), nil, nil)
	f.catalog.Put(episode.Config{ID: "visual-heavy", SceneMode: episode.ScenePeaks, SparkCost: 5})
	f.createSession(t, "visual-heavy")

	res, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2))
	if err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	if res.Actions.VisualType != VisualNone || !res.Actions.NeedsSparks {
		t.Errorf("actions = %+v, want a downgraded visual with the notice", res.Actions)
	}
	// The evaluation itself is reported unmodified.
	if res.Evaluation.VisualType != VisualCharacter {
		t.Errorf("evaluation visual = %q, want character", res.Evaluation.VisualType)
	}

	stored, _ := f.store.Get(context.Background(), "sess-1")
	if !stored.Director.SparkPromptShown {
		t.Error("spark prompt flag not persisted")
	}

	// Second shortfall in the same session stays quiet.
	res, err = f.director.RunExchange(context.Background(), "sess-1", makeHistory(4))
	if err != nil {
		t.Fatalf("second exchange: %v", err)
	}
	if res.Actions.NeedsSparks {
		t.Error("notice raised twice in one session")
	}
}

func TestRunExchange_ChargesWhenFunded(t *testing.T) {
	led := ledger.NewMemLedger(map[string]int{"user-1": 10})
	f := newFixture(t, llmmock.New("SIGNAL: [visual: object] [status: going] [hint: the key]"), nil, led)
	f.catalog.Put(episode.Config{ID: "ep", SceneMode: episode.ScenePeaks, SparkCost: 4})
	f.createSession(t, "ep")

	res, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2))
	if err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	if res.Actions.VisualType != VisualObject || res.Actions.DeductSparks != 4 {
		t.Errorf("actions = %+v", res.Actions)
	}
	if bal := led.Balance("user-1"); bal != 6 {
		t.Errorf("balance = %d, want 6", bal)
	}
}

func TestRunExchange_SavesMemoryOnClosing(t *testing.T) {
	raw := "She finally admits why she left. SIGNAL: [visual: none] [status: closing]"
	f := newFixture(t, llmmock.New(raw), nil, nil)
	f.createSession(t, "")

	if _, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2)); err != nil {
		t.Fatalf("RunExchange: %v", err)
	}

	saves := f.memory.saves["sess-1"]
	if len(saves) != 1 || saves[0] != raw {
		t.Errorf("memory saves = %v", saves)
	}
}

func TestRunExchange_MemoryFailureDoesNotFailExchange(t *testing.T) {
	f := newFixture(t, llmmock.New("SIGNAL: [visual: none] [status: done]"), nil, nil)
	f.memory.err = errors.New("memory bank down")
	f.createSession(t, "")

	if _, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2)); err != nil {
		t.Errorf("RunExchange: %v, want memory failures swallowed", err)
	}
}

func TestRunExchange_RetriesOnVersionConflict(t *testing.T) {
	store := &conflictStore{MemStore: sessionstore.NewMemStore(), remaining: 2}
	f := newFixture(t, llmmock.New("SIGNAL: [visual: none] [status: going]"), store, nil)
	f.createSession(t, "")

	res, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2))
	if err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	if res.Session.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1 after re-merge", res.Session.TurnCount)
	}
}

func TestRunExchange_GivesUpAfterRetryBudget(t *testing.T) {
	store := &conflictStore{MemStore: sessionstore.NewMemStore(), remaining: casRetries + 5}
	f := newFixture(t, llmmock.New("SIGNAL: [visual: none] [status: going]"), store, nil)
	f.createSession(t, "")

	if _, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2)); !errors.Is(err, sessionstore.ErrVersionConflict) {
		t.Errorf("err = %v, want a version conflict after exhausting retries", err)
	}
}

func TestRunExchange_UnknownSession(t *testing.T) {
	f := newFixture(t, llmmock.New("x"), nil, nil)
	if _, err := f.director.RunExchange(context.Background(), "nope", nil); !errors.Is(err, sessionstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunExchange_MissingTemplateUsesDefaults(t *testing.T) {
	f := newFixture(t, llmmock.New("SIGNAL: [visual: character] [status: going] [hint: x]"), nil, nil)
	f.createSession(t, "deleted-episode")

	res, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2))
	if err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	// Defaults mean scenes off, so the evaluation's visual is not actioned.
	if res.Actions.VisualType != VisualNone {
		t.Errorf("visual = %q, want none under default config", res.Actions.VisualType)
	}
}

func TestGuide(t *testing.T) {
	f := newFixture(t, llmmock.New("Hold the silence a beat longer."), nil, nil)
	f.catalog.Put(episode.Config{ID: "ep", Genre: "romance", Situation: "Rain on the window.", TurnBudget: 20})
	f.createSession(t, "ep")

	g, err := f.director.Guide(context.Background(), "sess-1", makeHistory(2))
	if err != nil {
		t.Fatalf("Guide: %v", err)
	}
	if g.Phase != PhaseEstablish {
		t.Errorf("phase = %q, want establish for the first turn", g.Phase)
	}
	if g.Beat == "" || g.Anchor == "" {
		t.Errorf("guidance incomplete: %+v", g)
	}
	if g.TensionNote != "Hold the silence a beat longer." {
		t.Errorf("tension note = %q", g.TensionNote)
	}
}

func TestGuide_CompleteSession(t *testing.T) {
	f := newFixture(t, llmmock.New("SIGNAL: [visual: none] [status: done]"), nil, nil)
	f.createSession(t, "")

	if _, err := f.director.RunExchange(context.Background(), "sess-1", makeHistory(2)); err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	if _, err := f.director.Guide(context.Background(), "sess-1", nil); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("err = %v, want ErrSessionComplete", err)
	}
}

func TestGuide_UnknownSession(t *testing.T) {
	f := newFixture(t, llmmock.New("x"), nil, nil)
	if _, err := f.director.Guide(context.Background(), "nope", nil); !errors.Is(err, sessionstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
