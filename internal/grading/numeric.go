package grading

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// NumericMatcher supports exact string match or numeric tolerance via the accepted answers.
// The first entry is the target; later entries may set tolerances.
// Examples:
//
//	Accepted: ["3.14159", "tol=0.01"]   // absolute tolerance
//	Accepted: ["100", "reltol=0.05"]    // 5% relative tolerance
type NumericMatcher struct{}

func (NumericMatcher) Match(_ context.Context, submitted string, accepted []string) (bool, error) {
	if len(accepted) == 0 {
		return false, nil
	}
	target := strings.TrimSpace(accepted[0])
	str := strings.TrimSpace(submitted)
	if str == "" {
		return false, nil
	}
	if str == target {
		return true, nil
	}

	rv, rOK := parseFloatLoose(str)
	tv, tOK := parseFloatLoose(target)
	if !rOK || !tOK {
		return false, nil
	}

	absTol, relTol := parseTolerances(accepted[1:])
	diff := math.Abs(rv - tv)
	if diff == 0 {
		return true, nil
	}
	if absTol >= 0 && diff <= absTol {
		return true, nil
	}
	if relTol >= 0 && diff <= relTol*math.Abs(tv) {
		return true, nil
	}
	return false, nil
}

func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	if sp := strings.Fields(s); len(sp) > 0 {
		if v, err := strconv.ParseFloat(sp[0], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func parseTolerances(keys []string) (absTol float64, relTol float64) {
	absTol, relTol = -1, -1
	for _, k := range keys {
		k = strings.TrimSpace(strings.ToLower(k))
		if strings.HasPrefix(k, "tol=") {
			if v, err := strconv.ParseFloat(strings.TrimPrefix(k, "tol="), 64); err == nil {
				absTol = v
			}
		}
		if strings.HasPrefix(k, "reltol=") {
			if v, err := strconv.ParseFloat(strings.TrimPrefix(k, "reltol="), 64); err == nil {
				relTol = v
			}
		}
	}
	return
}
