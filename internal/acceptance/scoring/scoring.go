// Package scoring converts residual likelihood/impact ratings into a score
// and judges that score against a risk-appetite tier.
//
// Everything here is pure: no state, no I/O, safe for concurrent use.
package scoring

import (
	"fmt"

	dErrors "riskaccept/pkg/domain-errors"
)

const (
	MinRating = 1
	MaxRating = 5
	MinScore  = MinRating * MinRating
	MaxScore  = MaxRating * MaxRating
)

// Appetite is an organization-declared tolerance tier.
type Appetite string

const (
	AppetiteVeryLow        Appetite = "VERY_LOW"
	AppetiteLow            Appetite = "LOW"
	AppetiteLowToModerate  Appetite = "LOW_TO_MODERATE"
	AppetiteModerate       Appetite = "MODERATE"
	AppetiteModerateToHigh Appetite = "MODERATE_TO_HIGH"
	AppetiteHigh           Appetite = "HIGH"
)

// Appetites lists tiers from most to least conservative.
var Appetites = []Appetite{
	AppetiteVeryLow,
	AppetiteLow,
	AppetiteLowToModerate,
	AppetiteModerate,
	AppetiteModerateToHigh,
	AppetiteHigh,
}

// appetiteMax is the highest score tolerated at each tier.
// Values never decrease as the tier loosens.
var appetiteMax = map[Appetite]int{
	AppetiteVeryLow:        3,
	AppetiteLow:            6,
	AppetiteLowToModerate:  9,
	AppetiteModerate:       12,
	AppetiteModerateToHigh: 16,
	AppetiteHigh:           20,
}

var appetiteLabels = map[Appetite]string{
	AppetiteVeryLow:        "Very Low",
	AppetiteLow:            "Low",
	AppetiteLowToModerate:  "Low to Moderate",
	AppetiteModerate:       "Moderate",
	AppetiteModerateToHigh: "Moderate to High",
	AppetiteHigh:           "High",
}

func (a Appetite) IsValid() bool {
	_, ok := appetiteMax[a]
	return ok
}

// Label is the human-readable tier name used in exports.
func (a Appetite) Label() string {
	if l, ok := appetiteLabels[a]; ok {
		return l
	}
	return string(a)
}

func ParseAppetite(s string) (Appetite, error) {
	a := Appetite(s)
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown risk appetite %q", s))
	}
	return a, nil
}

// Score returns likelihood * impact. Both ratings must lie in [1,5].
func Score(likelihood, impact int) (int, error) {
	if likelihood < MinRating || likelihood > MaxRating {
		return 0, dErrors.NewField(dErrors.CodeInvalidInput, "likelihood",
			fmt.Sprintf("likelihood must be between %d and %d, got %d", MinRating, MaxRating, likelihood))
	}
	if impact < MinRating || impact > MaxRating {
		return 0, dErrors.NewField(dErrors.CodeInvalidInput, "impact",
			fmt.Sprintf("impact must be between %d and %d, got %d", MinRating, MaxRating, impact))
	}
	return likelihood * impact, nil
}

// AppetiteMax returns the maximum score tolerated at a tier.
func AppetiteMax(a Appetite) (int, error) {
	limit, ok := appetiteMax[a]
	if !ok {
		return 0, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown risk appetite %q", a))
	}
	return limit, nil
}

// Verdict is the outcome of comparing a score with an appetite.
type Verdict struct {
	Breached   bool `json:"breached"`
	Difference int  `json:"difference"`
}

// Breach reports whether score exceeds the tier's maximum and by how much.
func Breach(score int, a Appetite) (Verdict, error) {
	limit, err := AppetiteMax(a)
	if err != nil {
		return Verdict{}, err
	}
	if score < MinScore || score > MaxScore {
		return Verdict{}, dErrors.NewField(dErrors.CodeInvalidInput, "score",
			fmt.Sprintf("score must be between %d and %d, got %d", MinScore, MaxScore, score))
	}
	if score <= limit {
		return Verdict{}, nil
	}
	return Verdict{Breached: true, Difference: score - limit}, nil
}

// Assess scores a likelihood/impact pair and judges it against appetite in one call.
func Assess(likelihood, impact int, a Appetite) (int, Verdict, error) {
	score, err := Score(likelihood, impact)
	if err != nil {
		return 0, Verdict{}, err
	}
	verdict, err := Breach(score, a)
	if err != nil {
		return 0, Verdict{}, err
	}
	return score, verdict, nil
}
