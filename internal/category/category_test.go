package category

import "testing"

func TestResolveKnown(t *testing.T) {
	d := Resolve(Emergency)
	if d.Name != Emergency {
		t.Fatalf("expected emergency descriptor, got %q", d.Name)
	}
	if d.Weight != 1 {
		t.Fatalf("expected weight 1 for emergency, got %d", d.Weight)
	}
	if !d.SoundOnCritical {
		t.Fatalf("emergency should have sound enabled")
	}
}

func TestResolveUnknownFallsBackToInfo(t *testing.T) {
	d := Resolve("definitely-not-a-category")
	if d.Name != Info {
		t.Fatalf("expected info fallback, got %q", d.Name)
	}
	if d.Weight != 13 {
		t.Fatalf("expected info weight 13, got %d", d.Weight)
	}
}

func TestWeightsOrderedBySeverity(t *testing.T) {
	// Spot-check that more severe categories carry lower weights.
	pairs := [][2]string{
		{Emergency, Security},
		{Security, Critical},
		{Critical, Error},
		{Error, Warning},
		{Warning, Inventory},
		{Inventory, Info},
	}
	for _, p := range pairs {
		if Resolve(p[0]).Weight >= Resolve(p[1]).Weight {
			t.Errorf("%s (weight %d) should be more urgent than %s (weight %d)",
				p[0], Resolve(p[0]).Weight, p[1], Resolve(p[1]).Weight)
		}
	}
}

func TestKnown(t *testing.T) {
	if !Known(Recipe) {
		t.Fatalf("recipe should be a known category")
	}
	if Known("pizza") {
		t.Fatalf("pizza should not be a known category")
	}
}
