package catalog

import "testing"

func TestNextPilarFollowsFixedOrder(t *testing.T) {
	testCases := []struct {
		pilar    string
		wantNext string
		wantOK   bool
	}{
		{pilar: PilarVision, wantNext: PilarProposito, wantOK: true},
		{pilar: PilarProposito, wantNext: PilarCreencias, wantOK: true},
		{pilar: PilarCreencias, wantNext: PilarEstrategias, wantOK: true},
		{pilar: PilarEstrategias, wantOK: false},
		{pilar: "Unknown", wantOK: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.pilar, func(t *testing.T) {
			next, ok := NextPilar(testCase.pilar)
			if ok != testCase.wantOK || next != testCase.wantNext {
				t.Fatalf("NextPilar(%q) = %q, %v", testCase.pilar, next, ok)
			}
		})
	}
}

func TestCategoryAtLevel(t *testing.T) {
	if category, ok := CategoryAt(0); !ok || category != DefaultCategory {
		t.Fatalf("expected level 0 to be %s, got %q", DefaultCategory, category)
	}
	if category, ok := CategoryAt(1); !ok || category != "Personalidad" {
		t.Fatalf("expected level 1 to be Personalidad, got %q", category)
	}
	if _, ok := CategoryAt(len(Categories())); ok {
		t.Fatalf("expected no category past the catalog")
	}
}

func TestRecognitionMessageRotates(t *testing.T) {
	first := RecognitionMessage("Salud", PilarVision, 0)
	if first != "¡Gran trabajo en tu visión de salud!" {
		t.Fatalf("unexpected message %q", first)
	}
	if RecognitionMessage("Salud", PilarVision, 5) != first {
		t.Fatalf("expected messages to rotate every five sentences")
	}
	if RecognitionMessage("CalidadDeVida", PilarEstrategias, 1) != "¡Sigue implementando tus estrategias de calidad de vida!" {
		t.Fatalf("unexpected label for multi word category")
	}
	if RecognitionMessage("Salud", "Otro", 0) != "" {
		t.Fatalf("expected empty message for unknown pilar")
	}
}

func TestCatalogSlicesAreCopies(t *testing.T) {
	pilars := Pilars()
	pilars[0] = "mutated"
	if Pilars()[0] != PilarVision {
		t.Fatalf("catalog pilar order must not be mutable through returned slices")
	}
}
