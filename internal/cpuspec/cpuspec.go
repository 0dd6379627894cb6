// Package cpuspec picks default model thread counts from the host CPU.
// On hybrid CPUs inference threads scheduled on efficiency cores slow down
// every call, so the default is the number of performance cores when the
// CPU model is recognized.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

var (
	intelCoreRegex  = regexp.MustCompile(`intel.*core.*i[3579]-(\d{5})`)
	intelUltraRegex = regexp.MustCompile(`intel.*core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3})`)
	appleRegex      = regexp.MustCompile(`apple\s+(m[1-4])(?:\s+(pro|max|ultra))?`)
)

// Performance core counts keyed by model number prefix, suffixes (K, KF, F)
// share the core layout.
var intelPerformanceCores = map[string]int{
	"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
	"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
	"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
}

var intelUltraPerformanceCores = map[string]int{
	"9 285": 8,
	"7 265": 8, "7 255": 8,
	"5 235": 6, "5 225": 4,
}

// Pro variants ship in two layouts; the larger one is listed.
var applePerformanceCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

// Spec describes the host CPU.
type Spec struct {
	BrandName        string
	LogicalCores     int
	PerformanceCores int // 0 when the CPU model is not recognized
}

// Detect reads the host CPU with cpuid.
func Detect() Spec {
	return newSpec(cpuid.CPU.BrandName, cpuid.CPU.LogicalCores)
}

func newSpec(brand string, logical int) Spec {
	return Spec{
		BrandName:        brand,
		LogicalCores:     logical,
		PerformanceCores: performanceCores(brand),
	}
}

// DefaultThreads returns the thread count to use when none is configured,
// never more than available.
func (s Spec) DefaultThreads(available int) int {
	switch {
	case s.PerformanceCores > 0:
		return min(s.PerformanceCores, available)
	case s.LogicalCores > 0:
		return min(s.LogicalCores, available)
	default:
		return available
	}
}

// Threads resolves a configured thread count. Zero or less selects the CPU
// default; anything above the CPU count is capped.
func Threads(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 {
		return min(configured, available)
	}
	return Detect().DefaultThreads(available)
}

func performanceCores(brand string) int {
	brand = strings.ToLower(brand)

	if m := intelUltraRegex.FindStringSubmatch(brand); m != nil {
		return intelUltraPerformanceCores[m[1]+" "+m[2]]
	}
	if m := intelCoreRegex.FindStringSubmatch(brand); m != nil {
		return intelPerformanceCores[m[1]]
	}
	if m := appleRegex.FindStringSubmatch(brand); m != nil {
		chip := m[1]
		if m[2] != "" {
			chip += " " + m[2]
		}
		return applePerformanceCores[chip]
	}
	return 0
}
