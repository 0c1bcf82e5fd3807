package detector

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// Detection is a candidate that survived non-maximum suppression.
type Detection struct {
	Candidate
}

// Suppress performs greedy per-class non-maximum suppression.
//
// Candidates are visited by descending confidence (stable for ties). Each
// visited, unsuppressed candidate is kept; once maxKeep detections are kept
// the scan stops. A kept candidate suppresses every later candidate of the
// same class whose IoU with it exceeds iouThreshold. maxKeep <= 0 disables the
// cap. The input slice is not modified.
func Suppress(candidates []Candidate, iouThreshold float64, maxKeep int) []Detection {
	if len(candidates) == 0 {
		return nil
	}

	order := sortByConfidence(candidates)
	suppressed := make([]bool, len(order))
	kept := make([]Detection, 0, min(len(order), capHint(maxKeep, len(order))))

	for i, a := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, Detection{Candidate: candidates[a]})
		if maxKeep > 0 && len(kept) >= maxKeep {
			break
		}
		for j := i + 1; j < len(order); j++ {
			b := order[j]
			if suppressed[j] || candidates[b].ClassIndex != candidates[a].ClassIndex {
				continue
			}
			if ComputeIoU(candidates[a].Box, candidates[b].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func capHint(maxKeep, n int) int {
	if maxKeep <= 0 {
		return n
	}
	return maxKeep
}

// sortByConfidence returns candidate indices ordered by descending
// confidence, keeping input order for equal confidences.
func sortByConfidence(candidates []Candidate) []int {
	indices := make([]int, len(candidates))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return candidates[indices[i]].Confidence > candidates[indices[j]].Confidence
	})
	return indices
}

// ComputeIoU returns intersection over union of two boxes, or 0 when the
// union is empty.
func ComputeIoU(a, b utils.Box) float64 {
	iw := math.Max(0, math.Min(a.MaxX, b.MaxX)-math.Max(a.MinX, b.MinX))
	ih := math.Max(0, math.Min(a.MaxY, b.MaxY)-math.Max(a.MinY, b.MinY))
	inter := iw * ih

	union := a.Width()*a.Height() + b.Width()*b.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
