package classifier

import "testing"

func floatPtr(v float64) *float64 { return &v }

func TestResultRendering(t *testing.T) {
	r := &Result{Label: "Busuk", Confidence: floatPtr(0.5)}
	if pct, ok := r.ConfidencePercent(); !ok || pct != "50.00%" {
		t.Fatalf("unexpected percent %q", pct)
	}
	if r.DisplayLabel() != "Busuk" {
		t.Fatalf("unexpected label %q", r.DisplayLabel())
	}

	empty := &Result{}
	if _, ok := empty.ConfidencePercent(); ok {
		t.Fatal("missing confidence should not render")
	}
	if empty.DisplayLabel() != UnknownLabel {
		t.Fatalf("expected %q, got %q", UnknownLabel, empty.DisplayLabel())
	}
}

func TestVerdictIsConfigurable(t *testing.T) {
	defaults := NewVerdict([]string{"Segar"})
	if !defaults.IsFresh(&Result{Label: "Segar"}) {
		t.Fatal("Segar should be fresh")
	}
	if !defaults.IsFresh(&Result{Label: " segar "}) {
		t.Fatal("comparison should ignore case and padding")
	}
	if defaults.IsFresh(&Result{Label: "Busuk"}) || defaults.IsFresh(nil) {
		t.Fatal("Busuk and nil should not be fresh")
	}

	custom := NewVerdict([]string{"Fresh", "Ripe"})
	if !custom.IsFresh(&Result{Label: "Ripe"}) || custom.IsFresh(&Result{Label: "Segar"}) {
		t.Fatal("custom fresh set not honoured")
	}
}
