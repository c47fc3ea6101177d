package utils

import "math"

// Round2 округляет значение до двух знаков после запятой
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
