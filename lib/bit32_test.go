package lib

import "testing"
import "fmt"

var _ = fmt.Sprintf("dummy")

func TestZerosin32(t *testing.T) {
	if x := Bit32(0).Zeros(); x != 32 {
		t.Errorf("expected %v, got %v", 32, x)
	} else if x := Bit32(1).Zeros(); x != 31 {
		t.Errorf("expected %v, got %v", 31, x)
	} else if x = Bit32(0xaaaaaaaa).Zeros(); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	} else if x = Bit32(0x55555555).Zeros(); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	}
}

func BenchmarkZerosin32(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Bit32(0xaaaaaaaa).Zeros()
	}
}

func TestFindFirstSet64(t *testing.T) {
	if x := Bit64(0).Findfirstset(); x != -1 {
		t.Errorf("expected %v, got %v", -1, x)
	} else if x = Bit64(0x8000000000000000).Findfirstset(); x != 63 {
		t.Errorf("expected %v, got %v", 63, x)
	} else if x = Bit64(0x10).Findfirstset(); x != 4 {
		t.Errorf("expected %v, got %v", 4, x)
	}
}

func TestSetClearbit64(t *testing.T) {
	for i := uint8(0); i < 64; i++ {
		if x := Bit64(0).Setbit(i); x != Bit64(1)<<i {
			t.Errorf("expected %v, got %v", uint64(1)<<i, x)
		} else if y := x.Clearbit(i); y != 0 {
			t.Errorf("expected %v, got %v", 0, y)
		}
	}
}

func TestZerosin64(t *testing.T) {
	if x := Bit64(0).Zeros(); x != 64 {
		t.Errorf("expected %v, got %v", 64, x)
	} else if x = Bit64(0xaaaaaaaaaaaaaaaa).Zeros(); x != 32 {
		t.Errorf("expected %v, got %v", 32, x)
	} else if x = Bit64(0x5555555555555555).Zeros(); x != 32 {
		t.Errorf("expected %v, got %v", 32, x)
	}
}
