package director

import "testing"

func TestNormalizeGenre(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Drama", "drama"},
		{"Slice-of-Life", "slice of life"},
		{"slice  of   life", "slice of life"},
		{"SLICE OF LIFE", "slice of life"},
		{"sci-fi", "sci fi"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeGenre(tt.in); got != tt.want {
			t.Errorf("NormalizeGenre(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBeatFor_KnownGenres(t *testing.T) {
	for genre, row := range beatTable {
		for _, phase := range []Phase{PhaseEstablish, PhaseDevelop, PhaseEscalate, PhasePeak, PhaseResolve} {
			got := BeatFor(genre, phase)
			if got != row[phase] {
				t.Errorf("BeatFor(%q, %v) = %q, want the table row", genre, phase, got)
			}
			if got == "" {
				t.Errorf("BeatFor(%q, %v) is empty", genre, phase)
			}
		}
	}
}

func TestBeatFor_NormalizesGenreKey(t *testing.T) {
	if got, want := BeatFor("Slice-of-Life", PhasePeak), beatTable["slice of life"][PhasePeak]; got != want {
		t.Errorf("BeatFor hyphenated = %q, want %q", got, want)
	}
}

func TestBeatFor_UnknownGenreFallsBackToDrama(t *testing.T) {
	if got, want := BeatFor("cyber-noir", PhaseEscalate), beatTable[defaultGenre][PhaseEscalate]; got != want {
		t.Errorf("BeatFor unknown genre = %q, want drama row %q", got, want)
	}
	if got, want := BeatFor("", PhaseEstablish), beatTable[defaultGenre][PhaseEstablish]; got != want {
		t.Errorf("BeatFor empty genre = %q, want drama row %q", got, want)
	}
}

func TestBeatFor_UnknownPhaseFallsBackToGeneric(t *testing.T) {
	if got := BeatFor("drama", Phase("interlude")); got != genericBeat {
		t.Errorf("BeatFor unknown phase = %q, want generic beat", got)
	}
}
