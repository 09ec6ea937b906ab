package analytics

import "math"

// DefaultHypoxiaThreshold is 4 mg/L dissolved oxygen.
const DefaultHypoxiaThreshold = 4.0

// Hypoxia summarizes grid points whose dissolved oxygen is below a threshold.
type Hypoxia struct {
	Threshold float64
	Points    int
	Below     int
	Fraction  float64 // Below / Points
	Min       float64 // lowest predicted value
	// ShallowestBelow is the smallest depth among points below the
	// threshold; nil when none is.
	ShallowestBelow *float64
}

// SummarizeHypoxia counts points strictly below threshold. An empty input
// yields Points = 0, Fraction = 0 and Min = NaN.
func SummarizeHypoxia(depths, oxygen []float64, threshold float64) (Hypoxia, error) {
	if err := checkColumns(depths, oxygen); err != nil {
		return Hypoxia{}, err
	}
	h := Hypoxia{Threshold: threshold, Points: len(oxygen), Min: math.NaN()}
	for i, v := range oxygen {
		if math.IsNaN(h.Min) || v < h.Min {
			h.Min = v
		}
		if v < threshold {
			h.Below++
			if h.ShallowestBelow == nil || depths[i] < *h.ShallowestBelow {
				d := depths[i]
				h.ShallowestBelow = &d
			}
		}
	}
	if h.Points > 0 {
		h.Fraction = float64(h.Below) / float64(h.Points)
	}

	return h, nil
}
