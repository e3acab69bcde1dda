package priority

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// DaysUntil returns the signed number of whole days from now until due,
// rounded toward negative infinity. A due date of today, seen at any time
// after midnight, is therefore -1.
func DaysUntil(due, now time.Time) int {
	return int(math.Floor(float64(due.Sub(now)) / float64(day)))
}

// BuildFeatures concatenates the embedding and, when present, the day count
// into the classifier's input vector.
func BuildFeatures(embedding []float32, days *int) []float64 {
	n := len(embedding)
	if days != nil {
		n++
	}
	out := make([]float64, 0, n)
	for _, v := range embedding {
		out = append(out, float64(v))
	}
	if days != nil {
		out = append(out, float64(*days))
	}
	return out
}
