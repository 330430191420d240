package slo

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Window labels count whole hours or days: "1h", "24h", "7d".
var windowLabelPattern = regexp.MustCompile(`^([1-9][0-9]*)(h|d)$`)

// ParseWindowLabel returns the length of the window named by label
func ParseWindowLabel(label string) (time.Duration, error) {
	matches := windowLabelPattern.FindStringSubmatch(label)
	if matches == nil {
		return 0, fmt.Errorf("invalid window label: %q", label)
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid window label: %q", label)
	}

	if matches[2] == "d" {
		return time.Duration(value) * 24 * time.Hour, nil
	}
	return time.Duration(value) * time.Hour, nil
}

// WindowLabel names a window of the given hours. Days are used past one day
// when they divide evenly, so 24 stays "24h" and 168 becomes "7d".
func WindowLabel(hours int) string {
	if hours > 24 && hours%24 == 0 {
		return fmt.Sprintf("%dd", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
