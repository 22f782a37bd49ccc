// Package reminder scans deadlines on a schedule and sends graduated
// "time is running out" messages through the chat bot.
package reminder

import "time"

// Gradation is one reminder band: a threshold in minutes before the
// deadline, a stable tag stored in the sent markers and the text shown to
// the user.
type Gradation struct {
	Minutes int
	Tag     string
	Text    string
}

const (
	minutesPerHour = 60
	minutesPerDay  = 24 * minutesPerHour
)

// Ordered from the largest threshold to the smallest. Tags are persisted.
var catalog = []Gradation{
	{14 * minutesPerDay, "14d", "14 дней"},
	{7 * minutesPerDay, "7d", "7 дней"},
	{3 * minutesPerDay, "3d", "3 дня"},
	{1 * minutesPerDay, "1d", "1 день"},
	{12 * minutesPerHour, "12h", "12 часов"},
	{6 * minutesPerHour, "6h", "6 часов"},
	{3 * minutesPerHour, "3h", "3 часа"},
	{1 * minutesPerHour, "1h", "1 час"},
	{30, "30m", "30 минут"},
}

// Tolerance around a threshold, in minutes. The windows have to stay wider
// than the scan interval or a band can fall between two ticks; see
// NarrowestWindow and DefaultScanInterval.
const (
	upperSlack     = 30
	daySlack       = 12 * minutesPerHour
	hourSlack      = 30
	minuteSlack    = 5
	slackDayFloor  = minutesPerDay
	slackHourFloor = minutesPerHour
)

// DefaultScanInterval is the cadence the tolerance windows were sized for.
const DefaultScanInterval = 15 * time.Minute

// Catalog returns a copy of the gradations, largest threshold first.
func Catalog() []Gradation {
	out := make([]Gradation, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a gradation by tag.
func Lookup(tag string) (Gradation, bool) {
	for _, g := range catalog {
		if g.Tag == tag {
			return g, true
		}
	}
	return Gradation{}, false
}

// Window returns the inclusive range of remaining minutes that counts as
// "at" this gradation.
func (g Gradation) Window() (lower, upper int) {
	var slack int
	switch {
	case g.Minutes >= slackDayFloor:
		slack = daySlack
	case g.Minutes >= slackHourFloor:
		slack = hourSlack
	default:
		slack = minuteSlack
	}
	return g.Minutes - slack, g.Minutes + upperSlack
}

// Matches reports whether minutesRemaining falls inside the gradation window.
func (g Gradation) Matches(minutesRemaining int) bool {
	lower, upper := g.Window()
	return lower <= minutesRemaining && minutesRemaining <= upper
}

// Select picks the first gradation, in catalog order, that has not been
// sent yet and whose window contains minutesRemaining. An unsent gradation
// whose threshold equals minutesRemaining exactly takes precedence, since the
// 1d and 1h windows reach down to the 12h and 30m thresholds.
func Select(minutesRemaining int, sent map[string]bool) (Gradation, bool) {
	for _, g := range catalog {
		if g.Minutes == minutesRemaining && !sent[g.Tag] {
			return g, true
		}
	}
	for _, g := range catalog {
		if sent[g.Tag] {
			continue
		}
		if g.Matches(minutesRemaining) {
			return g, true
		}
	}
	return Gradation{}, false
}

// NarrowestWindow is the width of the smallest tolerance window. A scan
// interval longer than this can skip a gradation entirely.
func NarrowestWindow() time.Duration {
	narrowest := -1
	for _, g := range catalog {
		lower, upper := g.Window()
		if w := upper - lower; narrowest < 0 || w < narrowest {
			narrowest = w
		}
	}
	return time.Duration(narrowest) * time.Minute
}
