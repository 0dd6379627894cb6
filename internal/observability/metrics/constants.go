// Package metrics provides constants used across metric definitions.
package metrics

// Status label values.
const (
	// StatusSuccess marks a completed operation.
	StatusSuccess = "success"
	// StatusError marks a failed operation.
	StatusError = "error"
)

// Cache lookup results.
const (
	LabelHit  = "hit"
	LabelMiss = "miss"
)

// Histogram bucket configuration constants.
const (
	// BucketStart100us is the starting bucket for 0.1ms histograms (0.1ms to ~400ms range).
	BucketStart100us = 0.0001
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~4s range).
	BucketStart1ms = 0.001
	// BucketStart100B is the starting bucket for 100 byte histograms (100B to ~100MB range).
	BucketStart100B = 100.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor10 is the exponential growth factor of 10 for larger ranges.
	BucketFactor10 = 10

	// BucketCount6 defines 6 exponential buckets.
	BucketCount6 = 6
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
