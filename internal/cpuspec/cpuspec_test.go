package cpuspec

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerformanceCores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		brand string
		want  int
	}{
		{"12th Gen Intel(R) Core(TM) i9-12900K", 8},
		{"13th Gen Intel(R) Core(TM) i5-13400F", 6},
		{"Intel(R) Core(TM) i3-14100", 4},
		{"Intel(R) Core(TM) Ultra 7 265K", 8},
		{"Intel(R) Core(TM) Ultra 5 Processor 225", 4},
		{"Apple M1", 4},
		{"Apple M2 Max", 12},
		{"Apple M3 Max", 12},
		{"Apple M4 Pro", 8},
		{"Intel(R) Core(TM) i7-8700K CPU @ 3.70GHz", 0},
		{"AMD Ryzen 9 7950X 16-Core Processor", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.brand, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, performanceCores(tt.brand))
		})
	}
}

func TestDefaultThreads(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 12, newSpec("Apple M3 Max", 16).DefaultThreads(16))
	assert.Equal(t, 4, newSpec("Apple M3 Max", 16).DefaultThreads(4), "capped at available CPUs")
	assert.Equal(t, 6, newSpec("AMD Ryzen 5 5600X", 12).DefaultThreads(6))
	assert.Equal(t, 3, newSpec("", 0).DefaultThreads(3))
}

func TestThreads(t *testing.T) {
	t.Parallel()

	cpus := runtime.NumCPU()
	assert.Equal(t, 1, Threads(1))
	assert.Equal(t, cpus, Threads(cpus+100))

	got := Threads(0)
	assert.GreaterOrEqual(t, got, 1)
	assert.LessOrEqual(t, got, cpus)
}
