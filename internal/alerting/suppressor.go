package alerting

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/datastore/repository"
	"github.com/leafwatch/leafwatch/internal/errors"
)

// Suppression defaults.
const (
	DefaultDedupWindow        = 12 * time.Hour
	DefaultDriftTolerance     = 1.0
	DefaultThresholdTolerance = 0.001
)

// AlertHistory looks up the most recent alert a device condition produced.
type AlertHistory interface {
	LatestForDeviceCondition(ctx context.Context, conditionID uint) (*entities.Alert, error)
}

// DuplicateSuppressor decides whether a match repeats an alert the user
// has already seen.
type DuplicateSuppressor struct {
	history            AlertHistory
	window             time.Duration
	driftTolerance     float64
	thresholdTolerance float64
}

// NewDuplicateSuppressor creates a suppressor with the default window and
// tolerances.
func NewDuplicateSuppressor(history AlertHistory) *DuplicateSuppressor {
	return &DuplicateSuppressor{
		history:            history,
		window:             DefaultDedupWindow,
		driftTolerance:     DefaultDriftTolerance,
		thresholdTolerance: DefaultThresholdTolerance,
	}
}

// NewDuplicateSuppressorFromSettings creates a suppressor tuned by settings.
// Non-positive values fall back to the defaults.
func NewDuplicateSuppressorFromSettings(history AlertHistory, settings *conf.AlertingSettings) *DuplicateSuppressor {
	s := NewDuplicateSuppressor(history)
	if settings == nil {
		return s
	}
	if w := settings.DedupWindow.Std(); w > 0 {
		s.window = w
	}
	if settings.DriftTolerance > 0 {
		s.driftTolerance = settings.DriftTolerance
	}
	if settings.ThresholdTolerance > 0 {
		s.thresholdTolerance = settings.ThresholdTolerance
	}
	return s
}

// IsRecentDuplicate reports whether the latest alert for conditionID was
// raised within the window for the same operator and threshold with a
// reading no more than the drift tolerance away. reading must be in the
// unit the alert description was rendered in. Unparseable history is never
// a duplicate. Only storage failures are returned as errors.
func (s *DuplicateSuppressor) IsRecentDuplicate(
	ctx context.Context,
	conditionID uint,
	op Operator,
	threshold, reading float64,
	now time.Time,
) (bool, error) {
	prev, err := s.history.LatestForDeviceCondition(ctx, conditionID)
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return false, nil
		}
		return false, err
	}
	if prev.Time.Before(now.Add(-s.window)) {
		return false, nil
	}

	prevReading, prevOp, prevThreshold, ok := parsePreviousAlert(prev.Description)
	if !ok {
		return false, nil
	}
	if prevOp != op || math.Abs(prevThreshold-threshold) > s.thresholdTolerance {
		return false, nil
	}
	return math.Abs(prevReading-reading) <= s.driftTolerance, nil
}

// previousAlertRe matches descriptions like "25.43°C <=30" or "850ppm >=800".
var previousAlertRe = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)[^\s\d.-]*\s+(<=|>=)\s*(-?\d+(?:\.\d+)?)\s*$`)

// parsePreviousAlert extracts the reading, operator and threshold from an
// alert description written by describeMatch.
func parsePreviousAlert(text string) (reading float64, op Operator, threshold float64, ok bool) {
	m := previousAlertRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", 0, false
	}
	reading, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", 0, false
	}
	threshold, err = strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, "", 0, false
	}
	return reading, Operator(m[2]), threshold, true
}
