package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// cronMacros maps the handful of shorthand expressions to their 5-field
// equivalents.
var cronMacros = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// cronExpr is a parsed 5-field cron expression: minute, hour, day-of-month,
// month, day-of-week. Day-of-month and day-of-week combine with union
// semantics when both are constrained (neither field is "*"), matching
// standard cron behavior rather than requiring both to match at once.
type cronExpr struct {
	minutes     []int
	hours       []int
	daysOfMonth []int
	months      []int
	daysOfWeek  []int

	domWild bool
	dowWild bool

	expr string
}

func parseCron(expr string) (*cronExpr, error) {
	expr = strings.TrimSpace(expr)
	if replacement, ok := cronMacros[strings.ToLower(expr)]; ok {
		expr = replacement
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidCron, len(fields))
	}

	ce := &cronExpr{expr: expr, domWild: fields[2] == "*", dowWild: fields[4] == "*"}
	var err error

	if ce.minutes, err = parseCronField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("%w: minute field: %v", ErrInvalidCron, err)
	}
	if ce.hours, err = parseCronField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("%w: hour field: %v", ErrInvalidCron, err)
	}
	if ce.daysOfMonth, err = parseCronField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("%w: day-of-month field: %v", ErrInvalidCron, err)
	}
	if ce.months, err = parseCronField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("%w: month field: %v", ErrInvalidCron, err)
	}
	if ce.daysOfWeek, err = parseCronField(fields[4], 0, 6); err != nil {
		return nil, fmt.Errorf("%w: day-of-week field: %v", ErrInvalidCron, err)
	}

	return ce, nil
}

// Next returns the first activation strictly after from, searching up to
// four years ahead. It returns the zero time if nothing matches in that
// window (a malformed field combination, e.g. Feb 30).
func (ce *cronExpr) Next(from time.Time) time.Time {
	t := from.Add(time.Minute - time.Duration(from.Second())*time.Second -
		time.Duration(from.Nanosecond())).Truncate(time.Minute)

	limit := t.Add(4 * 365 * 24 * time.Hour)

	for t.Before(limit) {
		if !intSliceContains(ce.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !ce.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !intSliceContains(ce.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !intSliceContains(ce.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}

	return time.Time{}
}

// dayMatches applies the DoM/DoW union rule: if both fields are
// constrained, a day matches when either matches; if only one is
// constrained, that field alone governs; if neither is constrained, every
// day matches.
func (ce *cronExpr) dayMatches(t time.Time) bool {
	domMatch := intSliceContains(ce.daysOfMonth, t.Day())
	dowMatch := intSliceContains(ce.daysOfWeek, int(t.Weekday()))

	switch {
	case ce.domWild && ce.dowWild:
		return true
	case ce.domWild:
		return dowMatch
	case ce.dowWild:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

func (ce *cronExpr) String() string {
	return ce.expr
}

func parseCronField(field string, min, max int) ([]int, error) {
	if field == "*" {
		return makeRange(min, max, 1), nil
	}

	var values []int
	for _, part := range strings.Split(field, ",") {
		partValues, err := parseCronPart(part, min, max)
		if err != nil {
			return nil, err
		}
		values = append(values, partValues...)
	}

	values = uniqueInts(values)
	sort.Ints(values)
	if len(values) == 0 {
		return nil, fmt.Errorf("no values resolved for field: %s", field)
	}
	return values, nil
}

func parseCronPart(part string, min, max int) ([]int, error) {
	stepParts := strings.SplitN(part, "/", 2)

	step := 1
	if len(stepParts) == 2 {
		var err error
		step, err = strconv.Atoi(stepParts[1])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step value: %s", stepParts[1])
		}
	}

	rangeStr := stepParts[0]

	if rangeStr == "*" {
		return makeRange(min, max, step), nil
	}

	rangeParts := strings.SplitN(rangeStr, "-", 2)
	if len(rangeParts) == 2 {
		rangeMin, err := strconv.Atoi(rangeParts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid range start: %s", rangeParts[0])
		}
		rangeMax, err := strconv.Atoi(rangeParts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid range end: %s", rangeParts[1])
		}
		if rangeMin < min || rangeMax > max || rangeMin > rangeMax {
			return nil, fmt.Errorf("range %d-%d out of bounds [%d, %d]", rangeMin, rangeMax, min, max)
		}
		return makeRange(rangeMin, rangeMax, step), nil
	}

	val, err := strconv.Atoi(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %s", rangeStr)
	}
	if val < min || val > max {
		return nil, fmt.Errorf("value %d out of bounds [%d, %d]", val, min, max)
	}
	return []int{val}, nil
}

func makeRange(start, end, step int) []int {
	var result []int
	for i := start; i <= end; i += step {
		result = append(result, i)
	}
	return result
}

func intSliceContains(slice []int, val int) bool {
	idx := sort.SearchInts(slice, val)
	return idx < len(slice) && slice[idx] == val
}

func uniqueInts(slice []int) []int {
	seen := make(map[int]bool, len(slice))
	result := make([]int, 0, len(slice))
	for _, v := range slice {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}
