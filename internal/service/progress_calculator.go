package service

import (
	"math"

	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

// lessonCompletionThreshold is the percentage at which a lesson counts as
// completed.
const lessonCompletionThreshold = 90

// fallbackPercentPerMinute is used when a lesson has no known duration:
// every minute watched counts as 10% (one percent per six seconds). This is
// a rough estimate for untimed lessons, not a real measurement.
const fallbackPercentPerMinute = 10

// ComputeLessonProgress converts a watch position in seconds into a
// completion percentage and flag for a lesson of the given planned duration
// in minutes. A duration of zero means the duration is unknown and the
// fallback estimate applies. Negative or non-finite watch positions are
// rejected, never clamped. The result is always within [0,100] and is
// non-decreasing in watchedSeconds for a fixed duration.
func ComputeLessonProgress(watchedSeconds, durationMinutes float64) (int, bool, error) {
	if math.IsNaN(watchedSeconds) || math.IsInf(watchedSeconds, 0) || watchedSeconds < 0 {
		return 0, false, appErrors.Clone(appErrors.ErrValidation, "watched seconds must be a finite non-negative number")
	}

	var raw float64
	if durationMinutes > 0 {
		raw = watchedSeconds / (durationMinutes * 60) * 100
	} else {
		raw = watchedSeconds / 60 * fallbackPercentPerMinute
	}

	percentage := int(math.Round(raw))
	if percentage > 100 {
		percentage = 100
	}

	return percentage, percentage >= lessonCompletionThreshold, nil
}

// ComputeCourseProgress derives the overall course percentage from the
// completed lesson count. A course without lessons is always at 0%; the
// result is 100 exactly when every lesson is completed. Rounding alone
// would report 100 from ratios of 0.995 and up, so a partially completed
// course is held at 99.
func ComputeCourseProgress(totalLessons, completedLessons int) int {
	if totalLessons <= 0 {
		return 0
	}
	if completedLessons < 0 {
		completedLessons = 0
	}
	if completedLessons >= totalLessons {
		return 100
	}

	percentage := int(math.Round(float64(completedLessons) / float64(totalLessons) * 100))
	if percentage > 99 {
		percentage = 99
	}
	return percentage
}
