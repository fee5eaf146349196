package lib

import "testing"
import "reflect"
import "unsafe"
import "bytes"

func TestMemcpy(t *testing.T) {
	src, dst := make([]byte, 100), make([]byte, 1024)
	for i := 0; i < len(src); i++ {
		src[0] = 0xAB
	}
	n := Memcpy(
		unsafe.Pointer(((*reflect.SliceHeader)(unsafe.Pointer(&dst))).Data),
		unsafe.Pointer(((*reflect.SliceHeader)(unsafe.Pointer(&src))).Data),
		len(src))
	if n != len(src) {
		t.Fatalf("expected %v, got %v", len(src), n)
	} else if bytes.Compare(dst[:len(src)], src) != 0 {
		t.Fatalf("Memcpy() failed")
	}

	dst, src = make([]byte, 100), make([]byte, 1024)
	for i := 0; i < len(src); i++ {
		src[0] = 0xAB
	}
	n = Memcpy(
		unsafe.Pointer(((*reflect.SliceHeader)(unsafe.Pointer(&dst))).Data),
		unsafe.Pointer(((*reflect.SliceHeader)(unsafe.Pointer(&src))).Data),
		len(dst))
	if n != len(dst) {
		t.Fatalf("expected %v, got %v", len(dst), n)
	} else if bytes.Compare(dst, src[:len(dst)]) != 0 {
		t.Fatalf("Memcpy() failed")
	}
}

func TestAbsInt64(t *testing.T) {
	if x := AbsInt64(10); x != 10 {
		t.Errorf("expected 10, got %v", x)
	} else if x = AbsInt64(0); x != 0 {
		t.Errorf("expected 0, got %v", x)
	} else if x = AbsInt64(-10); x != 10 {
		t.Errorf("expected 10, got %v", x)
	}
}

func TestCeil(t *testing.T) {
	if x := Ceil(16, 8); x != 2 {
		t.Errorf("expected 2, got %v", x)
	} else if x = Ceil(17, 8); x != 3 {
		t.Errorf("expected 3, got %v", x)
	} else if x = Ceil(0, 8); x != 0 {
		t.Errorf("expected 0, got %v", x)
	}
}

func TestAlignUpDown(t *testing.T) {
	if x := AlignUp(17, 16); x != 32 {
		t.Errorf("expected 32, got %v", x)
	} else if x = AlignUp(32, 16); x != 32 {
		t.Errorf("expected 32, got %v", x)
	} else if x = AlignDown(31, 16); x != 16 {
		t.Errorf("expected 16, got %v", x)
	} else if x = AlignDown(32, 16); x != 32 {
		t.Errorf("expected 32, got %v", x)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int64{1, 2, 4, 1024, 4096} {
		if !IsPowerOfTwo(n) {
			t.Errorf("expected %v to be a power of two", n)
		}
	}
	for _, n := range []int64{0, 3, 5, 100, -4} {
		if IsPowerOfTwo(n) {
			t.Errorf("expected %v to not be a power of two", n)
		}
	}
}

func BenchmarkMemcpy(b *testing.B) {
	ln := 10 * 1024
	src, dst := make([]byte, ln), make([]byte, ln)
	for i := 0; i < len(src); i++ {
		src[0] = 0xAB
	}
	for i := 0; i < b.N; i++ {
		Memcpy(
			unsafe.Pointer(((*reflect.SliceHeader)(unsafe.Pointer(&dst))).Data),
			unsafe.Pointer(((*reflect.SliceHeader)(unsafe.Pointer(&src))).Data),
			ln)
	}
}
