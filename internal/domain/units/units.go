// Package units converts weight between the API-facing systems and grams,
// the canonical storage unit.
package units

const gramsPerPound = 453.59237

// System selects the weight unit a caller works in. Everything that is not
// metric is treated as imperial.
type System string

const (
	Metric   System = "metric"
	Imperial System = "imperial"
)

func PoundsToGrams(value float64) int {
	return int(value * gramsPerPound)
}

func KilogramsToGrams(value float64) int {
	return int(value * 1000)
}

func GramsToPounds(value float64) float64 {
	return value / gramsPerPound
}

func GramsToKilograms(value float64) float64 {
	return value / 1000
}

// ToGrams converts a caller-facing weight into integer grams for storage.
func (s System) ToGrams(value float64) int {
	if s != Metric {
		return PoundsToGrams(value)
	}
	return KilogramsToGrams(value)
}

// FromGrams converts stored grams back into the caller-facing unit.
func (s System) FromGrams(grams int) float64 {
	if s != Metric {
		return GramsToPounds(float64(grams))
	}
	return GramsToKilograms(float64(grams))
}
