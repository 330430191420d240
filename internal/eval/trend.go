package eval

import "time"

// DefaultTrendPoints is the number of history entries compared by ComputeTrend
const DefaultTrendPoints = 6

// Direction is the direction of a burn rate trend
type Direction string

const (
	DirectionUp           Direction = "up"
	DirectionDown         Direction = "down"
	DirectionFlat         Direction = "flat"
	DirectionInsufficient Direction = "insufficient_data"
)

// TrendPoint is one historical burn rate of a window
type TrendPoint struct {
	Window    string    `json:"window"`
	Timestamp time.Time `json:"timestamp"`
	BurnRate  float64   `json:"burn_rate"`
}

// Trend summarizes the most recent burn rates of a window
type Trend struct {
	Window       string       `json:"window"`
	Direction    Direction    `json:"direction"`
	MeanBurnRate float64      `json:"mean_burn_rate"`
	Points       []TrendPoint `json:"points"`
}

// ComputeTrend compares the newest and oldest of the last n points of window.
// points must be ordered most recent first. Fewer than two points give no direction.
func ComputeTrend(points []TrendPoint, window string, n int) Trend {
	if n <= 0 {
		n = DefaultTrendPoints
	}

	selected := make([]TrendPoint, 0, n)
	for _, p := range points {
		if p.Window != window {
			continue
		}
		selected = append(selected, p)
		if len(selected) == n {
			break
		}
	}

	trend := Trend{
		Window:    window,
		Direction: DirectionInsufficient,
		Points:    selected,
	}
	if len(selected) == 0 {
		return trend
	}

	var sum float64
	for _, p := range selected {
		sum += p.BurnRate
	}
	trend.MeanBurnRate = sum / float64(len(selected))

	if len(selected) < 2 {
		return trend
	}

	newest, oldest := selected[0].BurnRate, selected[len(selected)-1].BurnRate
	switch {
	case newest > oldest:
		trend.Direction = DirectionUp
	case newest < oldest:
		trend.Direction = DirectionDown
	default:
		trend.Direction = DirectionFlat
	}
	return trend
}
