// Package utils provides utility functions for the application.
package utils

import "math"

func ToPtr[T any](v T) *T {
	return &v
}

// DerefString returns the pointed value or "" for nil
func DerefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Round2 rounds v to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percent returns part/total*100 rounded to two decimals, 0 when total is 0
func Percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return Round2(float64(part) / float64(total) * 100)
}
