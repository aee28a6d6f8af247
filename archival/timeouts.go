package archival

import (
	"time"
)

const (
	fetchBudgetFloor  = 30 * time.Second
	fetchBudgetCeil   = 300 * time.Second
	fetchTimePerFile  = 500 * time.Millisecond // assumes ~2 files/sec sustained
	fetchSafetyFactor = 2

	finalizeBudgetFloor = 60 * time.Second
	finalizeBudgetCeil  = 300 * time.Second
	finalizePerMegabyte = 10 * time.Second
)

// FetchPhaseTimeout sizes the wall-clock budget for fetching fileCount files.
// Grows linearly with the workload, clamped to [30s, 300s]. Monotone
// non-decreasing in fileCount.
func FetchPhaseTimeout(fileCount int) time.Duration {
	estimated := time.Duration(fileCount) * fetchTimePerFile * fetchSafetyFactor
	if estimated < fetchBudgetFloor {
		return fetchBudgetFloor
	}
	if estimated > fetchBudgetCeil {
		return fetchBudgetCeil
	}
	return estimated
}

// FinalizePhaseTimeout sizes the budget for serializing sizeBytes of
// accumulated media into the final archive, clamped to [60s, 300s]. Size is
// taken from descriptor hints at session start; 10s per megabyte covers
// compression on low-end devices.
func FinalizePhaseTimeout(sizeBytes int64) time.Duration {
	mb := float64(sizeBytes) / (1024 * 1024)
	scaled := time.Duration(mb * float64(finalizePerMegabyte))
	if scaled < finalizeBudgetFloor {
		return finalizeBudgetFloor
	}
	if scaled > finalizeBudgetCeil {
		return finalizeBudgetCeil
	}
	return scaled
}
