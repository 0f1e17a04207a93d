package palette

import "testing"

func TestFill(t *testing.T) {
	t.Parallel()

	if Default.Fill(true) != Default.Multiscale {
		t.Fatalf("expected multiscale colour")
	}
	if Default.Fill(false) != Default.Dataset {
		t.Fatalf("expected dataset colour")
	}
}

func TestHex(t *testing.T) {
	t.Parallel()

	if got := Hex(Default.Dataset); got != "#1f77b4" {
		t.Fatalf("unexpected Hex(Dataset): %q", got)
	}
}
