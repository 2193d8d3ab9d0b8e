package storage

import "testing"

func TestBitmapSetAndCheck(t *testing.T) {
	buf := make([]byte, 16)
	bm := NewBitmap(buf)

	for _, i := range []int{0, 7, 8, 64, 127} {
		bm.Set(i, true)
	}
	for _, i := range []int{0, 7, 8, 64, 127} {
		if !bm.Check(i) {
			t.Fatalf("expected bit %d set", i)
		}
	}
	if bm.Check(1) {
		t.Fatal("expected bit 1 clear")
	}
	if bm.occupied != 5 {
		t.Fatalf("expected 5 occupied, got %d", bm.occupied)
	}

	bm.Set(0, false)
	if bm.Check(0) {
		t.Fatal("expected bit 0 cleared")
	}
	if bm.occupied != 4 {
		t.Fatalf("expected 4 occupied after clear, got %d", bm.occupied)
	}
}

func TestBitmapFullEmpty(t *testing.T) {
	buf := make([]byte, 1)
	bm := NewBitmap(buf)
	if !bm.IsEmpty() {
		t.Fatal("expected empty")
	}
	for i := 0; i < 8; i++ {
		bm.Set(i, true)
	}
	if !bm.IsFull() {
		t.Fatal("expected full")
	}
	bm.Set(3, false)
	if bm.IsFull() || bm.IsEmpty() {
		t.Fatal("expected neither full nor empty")
	}
}

func TestNewBitmapCountsPreExistingBits(t *testing.T) {
	buf := []byte{0b00000101}
	bm := NewBitmap(buf)
	if bm.occupied != 2 {
		t.Fatalf("expected 2 pre-set bits, got %d", bm.occupied)
	}
	if !bm.Check(0) || !bm.Check(2) {
		t.Fatal("expected bits 0 and 2 set")
	}
}
