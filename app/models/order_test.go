package models

import "testing"

func TestOrderArtworkKeys(t *testing.T) {
	order := Order{
		Items: []OrderItem{
			{ProductID: 1, ArtworkKey: "temp/a.png"},
			{ProductID: 2},
			{ProductID: 3, ArtworkKey: "temp/b.webp"},
		},
	}

	keys := order.ArtworkKeys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 artwork keys, got %d", len(keys))
	}
	if keys[0] != "temp/a.png" || keys[1] != "temp/b.webp" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestOrderIsFinalized(t *testing.T) {
	order := Order{FinalizationState: FinalizationPending}
	if order.IsFinalized() {
		t.Error("pending order must not report finalized")
	}
	order.FinalizationState = FinalizationDone
	if !order.IsFinalized() {
		t.Error("done order must report finalized")
	}
}
