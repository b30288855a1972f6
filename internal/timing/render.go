package timing

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// durationUnits are stepped through from seconds down to nanoseconds when
// scaling a duration for display.
var durationUnits = []string{"S", "mS", "uS", "nS"}

// FormatDuration renders a duration in seconds as a short human-readable
// string: the value is multiplied by 1000 and the unit stepped down until
// the scaled value reaches 1 (or units run out), then rounded to two
// decimal places with at least one decimal digit.
//
//	FormatDuration(3)        == "3.0S"
//	FormatDuration(0.003)    == "3.0mS"
//	FormatDuration(0.000003) == "3.0uS"
func FormatDuration(seconds float64) string {
	val := seconds
	unit := durationUnits[0]
	for _, u := range durationUnits {
		unit = u
		if val >= 1 {
			break
		}
		val *= 1000
	}

	val = math.RoundToEven(val*100) / 100

	s := strconv.FormatFloat(val, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + unit
}

// renderEvent is one time-ordered rendering event: a mark, an interval
// start, or an interval end.
type renderEvent struct {
	at   float64 // UNIX seconds
	node *Timer
	end  bool
}

// Render produces the text profile of the tree:
//
//	  1693000.100      200.0mS + Request
//	  1693000.110       10.0mS |  + Dependencies
//	       V                   |  |  - cache hit
//	  1693000.120              |  =
//	  1693000.300              =
//
// Events are collected for every node (one for a mark, start and end for an
// interval), stable-sorted by timestamp, and walked with a depth counter:
// an interval start prints a `+` line then deepens, its end shallows then
// prints a `=` line, and a mark prints a `-` line at the current depth.
// Repeated identical timestamps collapse to a "V" placeholder. This format
// is consumed by existing tooling and must be reproduced exactly.
func (t *Timer) Render() string {
	var events []renderEvent
	for _, node := range t.Walk() {
		if node.IsMark() {
			events = append(events, renderEvent{at: unixSeconds(node.start), node: node})
		}
	}
	for _, node := range t.Walk() {
		if node.IsMark() {
			continue
		}
		events = append(events, renderEvent{at: unixSeconds(node.start), node: node})
		events = append(events, renderEvent{at: unixSeconds(node.end), node: node, end: true})
	}

	// Stable: on timestamp ties marks keep their place before interval
	// events, and starts stay before their matching ends.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].at < events[j].at
	})

	depth := 0
	oldTime := 0.0
	lines := make([]string, 0, len(events))

	for _, ev := range events {
		var (
			at       float64
			interval string
			marker   string
			name     string
			desc     string
		)

		switch {
		case ev.node.IsMark():
			at = ev.at
			marker = "-"
			name = ev.node.name
			desc = ev.node.description
		case !ev.end:
			at = ev.at
			marker = "+"
			name = ev.node.name
			desc = ev.node.description
			interval = FormatDuration(ev.node.Duration().Seconds())
		default:
			depth--
			at = ev.at
			marker = "="
		}

		spacer := strings.Repeat("|  ", depth)
		if marker == "+" {
			depth++
		}

		var timeCol string
		if fmt.Sprintf("%10.3f", oldTime) == fmt.Sprintf("%10.3f", at) {
			timeCol = "V"
		} else {
			timeCol = fmt.Sprintf("%10.3f", at)
		}
		oldTime = at

		if desc != "" {
			desc = ": " + desc
		}

		lines = append(lines,
			center(timeCol, 14)+" "+fmt.Sprintf("%8s", interval)+" "+spacer+marker+" "+name+desc)
	}

	return strings.Join(lines, "\n")
}

// String renders the tree; it is what fmt prints for a Timer.
func (t *Timer) String() string {
	return t.Render()
}

// center pads s to width with the Python-style split: the extra pad cell
// goes on the right.
func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
