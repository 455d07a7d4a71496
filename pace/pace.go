// Package pace holds the running domain types shared by the stores and the
// arithmetic and formatting used to present them.
package pace

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Distance is a race distance in metres.
type Distance float64

// MarshalText renders the distance without trailing zeros so it can key a
// JSON object, e.g. "1609.34".
func (d Distance) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(d), 'f', -1, 64)), nil
}

// UnmarshalText parses a distance key.
func (d *Distance) UnmarshalText(text []byte) error {
	v, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return fmt.Errorf("invalid distance %q: %w", text, err)
	}
	*d = Distance(v)
	return nil
}

// Records maps a distance to the athlete's best time in seconds.
type Records map[Distance]float64

// Distances returns the record distances in ascending order.
func (r Records) Distances() []Distance {
	out := make([]Distance, 0, len(r))
	for d := range r {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Pace returns the record's pace in seconds per kilometre.
func (r Records) Pace(d Distance) (float64, bool) {
	t, ok := r[d]
	if !ok || d <= 0 {
		return 0, false
	}
	return t / float64(d) * 1000, true
}

// TimeForDistance returns the seconds needed to cover metres at secondsPerKm.
func TimeForDistance(secondsPerKm float64, metres Distance) float64 {
	return secondsPerKm * float64(metres) / 1000
}

// SpeedFromPace converts seconds per kilometre to km/h.
func SpeedFromPace(secondsPerKm float64) float64 {
	if secondsPerKm <= 0 {
		return 0
	}
	return 3600 / secondsPerKm
}

// VMAPercent expresses the speed of a pace as a share of a VMA in km/h.
func VMAPercent(secondsPerKm, vma float64) float64 {
	if vma <= 0 {
		return 0
	}
	return SpeedFromPace(secondsPerKm) / vma * 100
}

// Paces lists the table rows from the slowest pace down to the fastest,
// stepping by increment seconds.
func Paces(slowest, fastest, increment float64) []float64 {
	if increment <= 0 || slowest < fastest {
		return nil
	}
	var out []float64
	for p := slowest; p >= fastest; p -= increment {
		out = append(out, p)
	}
	return out
}

// MatchesRow reports whether record, a time over distance, falls on the
// table row whose time is rowTime when rows are increment seconds per km
// apart. Ties between two rows go to the faster one.
func MatchesRow(distance Distance, rowTime, increment, record float64) bool {
	if record <= 0 || increment <= 0 {
		return false
	}
	step := float64(distance) * increment / 1000
	diff := math.Abs(rowTime - record)
	return diff < math.Abs(rowTime+step-record) && diff <= math.Abs(rowTime-step-record)
}

// FormatTime renders seconds as 1h01'05", 1'30" or 45", optionally with
// centiseconds appended (45"67).
func FormatTime(seconds float64, withCentiseconds bool) string {
	hours := int(math.Floor(seconds / 3600))
	minutes := int(math.Floor(math.Mod(seconds, 3600) / 60))
	fullSeconds := int(math.Floor(math.Mod(seconds, 60)))
	centiseconds := int(math.Floor((seconds-math.Floor(seconds))*100 + 1e-6))

	out := ""
	if hours > 0 {
		out += fmt.Sprintf("%dh", hours)
	}
	switch {
	case hours > 0:
		out += fmt.Sprintf("%02d'", minutes)
	case minutes > 0:
		out += fmt.Sprintf("%d'", minutes)
	}
	out += fmt.Sprintf("%02d\"", fullSeconds)
	if withCentiseconds {
		out += fmt.Sprintf("%02d", centiseconds)
	}
	return out
}

// FormatPace renders seconds per kilometre as 5'05".
func FormatPace(secondsPerKm float64) string {
	total := int(math.Round(secondsPerKm))
	return fmt.Sprintf("%d'%02d\"", total/60, total%60)
}

// FormatSpeed renders km/h with two decimals.
func FormatSpeed(speed float64) string {
	return strconv.FormatFloat(speed, 'f', 2, 64)
}
