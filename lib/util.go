package lib

import "unsafe"
import "reflect"

// Memcpy copy memory block of length `ln` from `src` to `dst`. This
// function is useful if memory block is obtained outside golang runtime,
// as is the case for page-mapped or arena-backed chunk payloads.
func Memcpy(dst, src unsafe.Pointer, ln int) int {
	var srcnd, dstnd []byte
	srcsl := (*reflect.SliceHeader)(unsafe.Pointer(&srcnd))
	srcsl.Len, srcsl.Cap = ln, ln
	srcsl.Data = (uintptr)(unsafe.Pointer(src))
	dstsl := (*reflect.SliceHeader)(unsafe.Pointer(&dstnd))
	dstsl.Len, dstsl.Cap = ln, ln
	dstsl.Data = (uintptr)(unsafe.Pointer(dst))
	return copy(dstnd, srcnd)
}

// AbsInt64 absolute value of int64 number. Except for -2^63, where
// returned value will be same as input.
func AbsInt64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// Ceil divides dividend by divisor, rounding up to the nearest integer.
func Ceil(dividend, divisor int64) int64 {
	if dividend%divisor == 0 {
		return dividend / divisor
	}
	return (dividend / divisor) + 1
}

// AlignUp rounds n up to the nearest multiple of align. align must be a
// power of two.
func AlignUp(n, align int64) int64 {
	return (n + align - 1) &^ (align - 1)
}

// AlignDown rounds n down to the nearest multiple of align. align must
// be a power of two.
func AlignDown(n, align int64) int64 {
	return n &^ (align - 1)
}

// IsPowerOfTwo reports whether n is a power of two.
func IsPowerOfTwo(n int64) bool {
	return n > 0 && (n&(n-1)) == 0
}
