package detector

import "github.com/MeKo-Tech/netthinne/internal/utils"

// Candidate is a decoded detector box in original-image pixel coordinates.
type Candidate struct {
	Box        utils.Box
	ClassIndex int
	Confidence float32
}

// DecodeParams describes the raw detector output and filtering threshold.
type DecodeParams struct {
	NumClasses    int
	InputWidth    int
	InputHeight   int
	ConfThreshold float32
}

// Stride returns the number of attribute rows per candidate (4 box values plus class scores).
func (p DecodeParams) Stride() int { return 4 + p.NumClasses }

// Decode turns an attribute-major [4+NumClasses, N] output into candidates.
//
// Each column holds cx, cy, w, h in model-input pixels followed by one score
// per class. The best class wins (lowest index on ties); columns whose best
// score is below ConfThreshold are dropped. Boxes are scaled independently on
// each axis back to origW x origH, clamped to the image and corner-ordered.
// Candidates are returned in column order.
func Decode(raw []float32, p DecodeParams, origW, origH int) []Candidate {
	if p.NumClasses <= 0 || p.InputWidth <= 0 || p.InputHeight <= 0 {
		return nil
	}
	n := len(raw) / p.Stride()
	if n == 0 {
		return nil
	}

	scaleX := float64(origW) / float64(p.InputWidth)
	scaleY := float64(origH) / float64(p.InputHeight)
	w, h := float64(origW), float64(origH)

	var out []Candidate
	for col := range n {
		bestClass := 0
		var bestScore float32
		for cls := range p.NumClasses {
			if s := raw[(4+cls)*n+col]; s > bestScore {
				bestScore = s
				bestClass = cls
			}
		}
		// NaN scores never win the scan above, and a NaN threshold keeps nothing.
		if !(bestScore >= p.ConfThreshold) {
			continue
		}

		cx := float64(raw[col])
		cy := float64(raw[n+col])
		bw := float64(raw[2*n+col])
		bh := float64(raw[3*n+col])

		box := utils.NewBox(
			(cx-bw/2)*scaleX,
			(cy-bh/2)*scaleY,
			(cx+bw/2)*scaleX,
			(cy+bh/2)*scaleY,
		).Clamp(w, h)

		out = append(out, Candidate{Box: box, ClassIndex: bestClass, Confidence: bestScore})
	}
	return out
}
