package director

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arcsong/arcsong/internal/episode"
	"github.com/arcsong/arcsong/pkg/provider/llm"
	llmmock "github.com/arcsong/arcsong/pkg/provider/llm/mock"
)

func TestGenerate_ComposesAllParts(t *testing.T) {
	provider := llmmock.New("Let the silence stretch before she answers.")
	g := NewGuidanceGenerator(provider, 0, nil, testLogger())

	cfg := episode.Config{
		Genre:     "romance",
		Situation: "Rain hammers the cafe window. She has not touched her coffee.",
	}
	guidance := g.Generate(context.Background(), nil, cfg, 1)

	if guidance.Phase != PhaseEstablish {
		t.Errorf("phase = %q, want establish on turn 1", guidance.Phase)
	}
	if guidance.Beat == "" {
		t.Error("beat is empty for a known genre")
	}
	if guidance.Anchor != "Rain hammers the cafe window" {
		t.Errorf("anchor = %q", guidance.Anchor)
	}
	if guidance.TensionNote != "Let the silence stretch before she answers." {
		t.Errorf("tension note = %q", guidance.TensionNote)
	}
}

func TestGenerate_ProviderFailureOmitsNote(t *testing.T) {
	provider := &llmmock.Provider{Err: errors.New("timeout")}
	g := NewGuidanceGenerator(provider, 0, nil, testLogger())

	guidance := g.Generate(context.Background(), nil, episode.Config{Genre: "mystery"}, 1)
	if guidance.TensionNote != "" {
		t.Errorf("tension note = %q, want empty on provider failure", guidance.TensionNote)
	}
	if guidance.Phase != PhaseEstablish || guidance.Beat == "" {
		t.Error("phase and beat must survive a note failure")
	}
}

func TestTensionNote_FailureCountsProviderError(t *testing.T) {
	metrics, reader := testMetrics(t)
	provider := &llmmock.Provider{Err: errors.New("timeout")}
	g := NewGuidanceGenerator(provider, 0, metrics, testLogger())

	g.Generate(context.Background(), nil, episode.Config{}, 1)

	if got := counterValue(t, reader, "arcsong.provider.errors"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}

func TestGenerate_DoesNotWriteIntoCallerHistory(t *testing.T) {
	provider := llmmock.New("Hold the tension.")
	g := NewGuidanceGenerator(provider, 0, nil, testLogger())

	backing := make([]llm.Message, 4)
	copy(backing, makeHistory(3))
	history := backing[:3]

	g.Generate(context.Background(), history, episode.Config{}, 2)

	if backing[3] != (llm.Message{}) {
		t.Errorf("caller's backing array modified: %+v", backing[3])
	}
}

func TestGuidanceGeneratorSetNoteTimeout(t *testing.T) {
	g := NewGuidanceGenerator(llmmock.New("x"), 0, nil, testLogger())
	if got := time.Duration(g.noteTimeoutNs.Load()); got != defaultNoteTimeout {
		t.Errorf("note timeout = %v, want the default", got)
	}

	g.SetNoteTimeout(7 * time.Second)
	if got := time.Duration(g.noteTimeoutNs.Load()); got != 7*time.Second {
		t.Errorf("note timeout = %v, want 7s", got)
	}
}

func TestTensionNote_FirstLineOnly(t *testing.T) {
	provider := llmmock.New("  Raise the stakes now.  \nHere is some extra rambling.")
	g := NewGuidanceGenerator(provider, 0, nil, testLogger())

	guidance := g.Generate(context.Background(), nil, episode.Config{}, 1)
	if guidance.TensionNote != "Raise the stakes now." {
		t.Errorf("tension note = %q", guidance.TensionNote)
	}
}

func TestPhysicalAnchor(t *testing.T) {
	tests := []struct {
		name      string
		situation string
		want      string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \n ", ""},
		{"first sentence", "The lighthouse lamp is out. The storm is an hour away.", "The lighthouse lamp is out"},
		{"question mark ends it", "Who left the door open? Nobody knows.", "Who left the door open"},
		{"newline ends it", "A long corridor\nwith many doors.", "A long corridor"},
		{"no terminator", "a bare fragment with no punctuation", "a bare fragment with no punctuation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := physicalAnchor(tt.situation); got != tt.want {
				t.Errorf("physicalAnchor(%q) = %q, want %q", tt.situation, got, tt.want)
			}
		})
	}
}

func TestPhysicalAnchor_CapsLength(t *testing.T) {
	long := strings.Repeat("x", anchorMaxLen+50)
	if got := physicalAnchor(long); len(got) != anchorMaxLen {
		t.Errorf("anchor length = %d, want %d", len(got), anchorMaxLen)
	}
}

func TestDirective_Rendering(t *testing.T) {
	g := Guidance{
		Phase:       PhaseEscalate,
		Beat:        "Force a choice.",
		Anchor:      "the unlit lamp room",
		TensionNote: "Do not let him change the subject.",
	}
	d := g.Directive()

	for _, want := range []string{
		"never reveal",
		"Pacing: escalate. Force a choice.",
		"Tension: Do not let him change the subject.",
		"Keep the scene physically anchored: the unlit lamp room",
	} {
		if !strings.Contains(d, want) {
			t.Errorf("directive missing %q:\n%s", want, d)
		}
	}
}

func TestDirective_OmitsEmptyParts(t *testing.T) {
	d := Guidance{Phase: PhaseDevelop, Beat: "Deepen the dynamic."}.Directive()
	if strings.Contains(d, "Tension:") {
		t.Error("directive renders an empty tension line")
	}
	if strings.Contains(d, "anchored") {
		t.Error("directive renders an empty anchor line")
	}
}

func TestGenerate_BoundsNoteHistory(t *testing.T) {
	provider := llmmock.New("Hold the tension.")
	g := NewGuidanceGenerator(provider, 0, nil, testLogger())

	history := makeHistory(12)
	g.Generate(context.Background(), history, episode.Config{}, 7)

	// Four recent messages plus the instruction message.
	if got := len(provider.Requests[0].Messages); got != guidanceHistoryWindow+1 {
		t.Errorf("messages sent = %d, want %d", got, guidanceHistoryWindow+1)
	}
}
