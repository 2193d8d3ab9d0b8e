package hash

import (
	"testing"

	"github.com/mnohosten/pagestore/pkg/storage"
)

func TestDirectoryEncodeDecodeRoundTrip(t *testing.T) {
	d := NewDirectory()
	d.GlobalDepth = 2
	d.PageIds[0] = storage.PageId(7)
	d.LocalDepths[0] = 2

	var page storage.Page
	d.EncodeInto(&page)

	got := DecodeDirectory(&page)
	if got.GlobalDepth != 2 {
		t.Fatalf("global depth = %d, want 2", got.GlobalDepth)
	}
	if got.PageIds[0] != 7 || got.LocalDepths[0] != 2 {
		t.Fatalf("slot 0 = (%d, %d), want (7, 2)", got.PageIds[0], got.LocalDepths[0])
	}
	if got.PageIds[1] != storage.NoPage {
		t.Fatalf("expected untouched slot 1 to remain NoPage, got %d", got.PageIds[1])
	}
}

func TestDirectoryIncrGlobalDepthMirrorsLowHalf(t *testing.T) {
	d := NewDirectory()
	d.PageIds[0] = storage.PageId(5)
	d.LocalDepths[0] = 0

	d.IncrGlobalDepth()

	if d.GlobalDepth != 1 {
		t.Fatalf("global depth = %d, want 1", d.GlobalDepth)
	}
	if d.PageIds[1] != 5 || d.LocalDepths[1] != 0 {
		t.Fatalf("mirrored slot 1 = (%d, %d), want (5, 0)", d.PageIds[1], d.LocalDepths[1])
	}
}

func TestDirectoryIndexMasksToGlobalDepth(t *testing.T) {
	d := NewDirectory()
	d.GlobalDepth = 0
	if idx := d.Index(0xFFFFFFFFFFFFFFFF); idx != 0 {
		t.Fatalf("expected index 0 at depth 0, got %d", idx)
	}
	d.GlobalDepth = 2
	if idx := d.Index(0b101); idx != 1 {
		t.Fatalf("expected index 1 (0b101 & 0b11), got %d", idx)
	}
}
