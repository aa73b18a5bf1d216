package stopwatch

import "fmt"

// FormatClock renders seconds as HH:MM:SS.
func FormatClock(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatTotal renders a day's total as hours and minutes, e.g. "2h 5m".
func FormatTotal(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return fmt.Sprintf("%dh %dm", totalSeconds/3600, (totalSeconds%3600)/60)
}
