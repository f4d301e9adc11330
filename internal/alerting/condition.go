package alerting

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Condition is a parsed threshold rule, stored as e.g. "<=30".
type Condition struct {
	Operator  Operator
	Threshold float64
}

// ParseCondition parses the stored operator/threshold encoding.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	for _, op := range []Operator{OperatorLessOrEqual, OperatorGreaterOrEqual} {
		rest, found := strings.CutPrefix(s, string(op))
		if !found {
			continue
		}
		threshold, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return Condition{}, fmt.Errorf("invalid threshold in condition %q: %w", s, err)
		}
		if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			return Condition{}, fmt.Errorf("invalid threshold in condition %q", s)
		}
		return Condition{Operator: op, Threshold: threshold}, nil
	}
	return Condition{}, fmt.Errorf("unsupported operator in condition %q", s)
}

// String returns the stored encoding, e.g. ">=1013.5".
func (c Condition) String() string {
	return string(c.Operator) + formatNumber(c.Threshold)
}

// Matches reports whether value satisfies the condition. Boundaries match.
func (c Condition) Matches(value float64) bool {
	switch c.Operator {
	case OperatorLessOrEqual:
		return value <= c.Threshold
	case OperatorGreaterOrEqual:
		return value >= c.Threshold
	default:
		return false
	}
}

// formatNumber renders v rounded to two decimals without trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func errUnknownSensorType(name string) error {
	return fmt.Errorf("unknown sensor type %q", name)
}
