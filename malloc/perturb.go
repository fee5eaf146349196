package malloc

import "unsafe"

// perturbFill replaces debug.go/production.go's build-tag-gated fill
// patterns with a runtime-configurable one, per spec.md §6's "perturb"
// tuning parameter: a freshly allocated region is filled with
// value^0xFF, a released region with value. A zero value disables
// perturbing entirely (the common case, left off the hot path).
func perturbFill(p unsafe.Pointer, n int64, value byte) {
	if value == 0 || n <= 0 {
		return
	}
	b := unsafe.Slice((*byte)(p), int(n))
	for i := range b {
		b[i] = value
	}
}

func perturbOnAlloc(p unsafe.Pointer, n int64, cfg *Config) {
	if cfg.Perturb != 0 {
		perturbFill(p, n, cfg.Perturb^0xFF)
	}
}

func perturbOnFree(p unsafe.Pointer, n int64, cfg *Config) {
	if cfg.Perturb != 0 {
		perturbFill(p, n, cfg.Perturb)
	}
}
