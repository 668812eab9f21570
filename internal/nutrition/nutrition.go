// Package nutrition maps nutrition-facts values to a bounded health score
// and a three-tier classification.
package nutrition

import (
	"math"
	"strconv"
)

// Classification labels a product by its health score.
type Classification string

const (
	VeryHarmful Classification = "Very Harmful"
	Harmful     Classification = "Harmful"
	Safe        Classification = "Safe"
)

// Per-nutrient caps used for clamping and normalization.
const (
	MaxSugar    = 30.0
	MaxSatFat   = 15.0
	MaxSodium   = 1000.0
	MaxCalories = 500.0
	MaxFiber    = 10.0
	MaxProtein  = 20.0
)

const (
	weightSugar    = -0.25
	weightSatFat   = -0.20
	weightSodium   = -0.20
	weightCalories = -0.15
	weightFiber    = 0.10
	weightProtein  = 0.10
)

const (
	harmfulThreshold = 20.0
	safeThreshold    = 40.0
)

// Record holds the nutrient quantities read from a label.
type Record struct {
	Sugar    float64 `json:"sugar"`
	SatFat   float64 `json:"sat_fat"`
	Sodium   float64 `json:"sodium"`
	Fiber    float64 `json:"fiber"`
	Protein  float64 `json:"protein"`
	Calories float64 `json:"calories"`
}

// Result is the score and classification derived from a Record.
type Result struct {
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
}

// Score returns a value in [0, 100] rounded to two decimals. Fields are
// clamped at their cap only; negative values are passed through.
func Score(r Record) float64 {
	raw := weightSugar*normalize(r.Sugar, MaxSugar) +
		weightSatFat*normalize(r.SatFat, MaxSatFat) +
		weightSodium*normalize(r.Sodium, MaxSodium) +
		weightCalories*normalize(r.Calories, MaxCalories) +
		weightFiber*normalize(r.Fiber, MaxFiber) +
		weightProtein*normalize(r.Protein, MaxProtein)

	score := math.Max(0, math.Min(100, (raw+1)*50))
	return roundCents(score)
}

// roundCents rounds to two decimals from the exact binary value, with ties
// going to the even digit.
func roundCents(x float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 2, 64), 64)
	if err != nil {
		return x
	}
	return rounded
}

// Classify buckets a score. Each band includes its lower bound.
func Classify(score float64) Classification {
	switch {
	case score < harmfulThreshold:
		return VeryHarmful
	case score < safeThreshold:
		return Harmful
	default:
		return Safe
	}
}

// Evaluate scores and classifies a record.
func Evaluate(r Record) Result {
	score := Score(r)
	return Result{Score: score, Classification: Classify(score)}
}

func normalize(value, limit float64) float64 {
	return math.Min(value, limit) / limit
}
