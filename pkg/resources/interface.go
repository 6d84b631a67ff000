// Package resources provides the host-capacity hint pool.Options uses
// to pick a default MaxThreads.
package resources

import "runtime"

// Limits defines resource limits for a process
type Limits struct {
	MaxMemory   int64   // Maximum memory in bytes
	MaxCPU      float64 // Maximum CPU cores (1.0 = one core)
	MaxThreads  int     // Maximum number of OS threads
	ProfileRate int     // Memory profiling rate (1 = profile all allocations)
}

// DefaultLimits returns the default resource limits
func DefaultLimits() Limits {
	return Limits{
		MaxMemory:   1 << 30,         // 1GB
		MaxCPU:      1.0,             // 1 core
		MaxThreads:  runtime.NumCPU(), // One thread per CPU
		ProfileRate: 0,               // No profiling
	}
}
