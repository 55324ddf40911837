// Package dateparse extracts a natural-language date range from a free-text
// search query (C12), so "sunset photos last summer" becomes a clean
// semantic query plus an explicit date_from/date_to pair.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Now returns the reference date against which relative spans ("last week",
// "yesterday") are resolved. Overridable in tests; production code leaves
// it at its default.
var Now = func() time.Time { return time.Now() }

const dateLayout = "2006-01-02"

// ParsedQuery is the result of stripping a recognized date phrase out of a
// raw query string.
type ParsedQuery struct {
	CleanQuery string
	DateFrom   string // "" if no lower bound was recognized
	DateTo     string // "" if no upper bound was recognized
}

var (
	reBetween = regexp.MustCompile(`(?i)^(.*?)\s*\bbetween\s+(.+?)\s+and\s+(.+?)$`)
	reFromTo  = regexp.MustCompile(`(?i)^(.*?)\s*\bfrom\s+(.+?)\s+(?:to|till)\s+(.+?)$`)
	reRel     = regexp.MustCompile(`(?i)^(.*?)\s*\b(after|since|before|until|till|up to|in|on|during)\s+(.+?)$`)
	reWord    = regexp.MustCompile(`\S+`)

	rePhotosPrefix = regexp.MustCompile(`(?i)^(?:photos|images|pictures)?\s*(?:taken)?\s*`)
	rePhotosSuffix = regexp.MustCompile(`(?i)\s+(?:photos|images|pictures)$`)
	reBareKeyword  = regexp.MustCompile(`(?i)^(after|before|since|until|till|from|between|in|on)$`)
)

// Parse extracts an optional date range from input and returns the
// remaining query text with the recognized phrase removed.
func Parse(input string) ParsedQuery {
	if strings.TrimSpace(input) == "" {
		return ParsedQuery{}
	}

	trimmed := strings.TrimSpace(input)
	lower := strings.ToLower(trimmed)
	res := ParsedQuery{CleanQuery: trimmed}

	if m := reBetween.FindStringSubmatchIndex(lower); m != nil {
		a, b := lower[m[4]:m[5]], lower[m[6]:m[7]]
		if d1s, _, ok1 := parseDateSpan(a); ok1 {
			if _, d2e, ok2 := parseDateSpan(b); ok2 {
				res.DateFrom = d1s.Format(dateLayout)
				res.DateTo = d2e.Format(dateLayout)
				res.CleanQuery = strings.TrimSpace(trimmed[:m[3]])
				return clean(res)
			}
		}
	}

	if m := reFromTo.FindStringSubmatchIndex(lower); m != nil {
		a, b := lower[m[4]:m[5]], lower[m[6]:m[7]]
		if d1s, _, ok1 := parseDateSpan(a); ok1 {
			if _, d2e, ok2 := parseDateSpan(b); ok2 {
				res.DateFrom = d1s.Format(dateLayout)
				res.DateTo = d2e.Format(dateLayout)
				res.CleanQuery = strings.TrimSpace(trimmed[:m[3]])
				return clean(res)
			}
		}
	}

	if m := reRel.FindStringSubmatchIndex(lower); m != nil {
		prefix := lower[m[4]:m[5]]
		phrase := lower[m[6]:m[7]]
		if start, end, ok := parseDateSpan(phrase); ok {
			switch prefix {
			case "after", "since":
				res.DateFrom = start.Format(dateLayout)
			case "before", "until", "till", "up to":
				res.DateTo = end.Format(dateLayout)
			default: // in, on, during
				res.DateFrom = start.Format(dateLayout)
				res.DateTo = end.Format(dateLayout)
			}
			res.CleanQuery = strings.TrimSpace(lower[m[2]:m[3]])
			return clean(res)
		}
	}

	// A date span trailing (or comprising) the query, e.g. "photos 2024" or
	// "pictures last 7 days": try every word boundary as a candidate start.
	for _, loc := range reWord.FindAllStringIndex(lower, -1) {
		suffix := lower[loc[0]:]
		if start, end, ok := parseDateSpan(suffix); ok {
			res.DateFrom = start.Format(dateLayout)
			res.DateTo = end.Format(dateLayout)
			res.CleanQuery = strings.TrimSpace(trimmed[:loc[0]])
			return clean(res)
		}
	}

	return clean(res)
}

func clean(res ParsedQuery) ParsedQuery {
	base := rePhotosPrefix.ReplaceAllString(res.CleanQuery, "")
	base = rePhotosSuffix.ReplaceAllString(base, "")
	base = strings.TrimSpace(base)
	if reBareKeyword.MatchString(base) {
		base = ""
	}
	res.CleanQuery = base
	return res
}

var (
	reCountedSpan = regexp.MustCompile(`^(last|past|previous|next)\s+(\d+)\s+(day|week|month|year)s?$`)
	reKeywordSpan = regexp.MustCompile(`^(last|this|next|previous|current)\s+(week|month|year|quarter|financial year|monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)
	reQuarter     = regexp.MustCompile(`^(q[1-4]|first quarter of|second quarter of|third quarter of|fourth quarter of)\s+(\d{4})$`)
	reFinYear     = regexp.MustCompile(`^(?:fy|financial year)\s+(\d{4})(?:-\d{2,4})?$`)
	reModifier    = regexp.MustCompile(`^(early|mid|late|beginning of|start of|end of)\s+(.+)$`)
	reISODate     = regexp.MustCompile(`^(\d{4})[/-](\d{2})[/-](\d{2})$`)
	reSlashDate   = regexp.MustCompile(`^(\d{2})[/-](\d{2})[/-](\d{4})$`)
	reYearOnly    = regexp.MustCompile(`^\d{4}$`)
	reOfWord      = regexp.MustCompile(`\bof\b`)
	reSpaces      = regexp.MustCompile(`\s+`)
	reStripChars  = regexp.MustCompile(`[^a-z0-9\s/\-]`)
	reDayToken    = regexp.MustCompile(`^\d{1,2}(st|nd|rd|th)?$`)
	reMonthToken  = regexp.MustCompile(`^(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)$`)
)

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday, "sunday": time.Sunday,
}

// parseDateSpan parses a single phrase into an inclusive [start, end] day
// range. ok is false when the phrase is not a recognized date expression.
func parseDateSpan(input string) (start, end time.Time, ok bool) {
	s := strings.TrimSpace(strings.ToLower(input))
	s = reStripChars.ReplaceAllString(s, "")
	if s == "" {
		return time.Time{}, time.Time{}, false
	}

	now := dateOnly(Now())

	if m := reCountedSpan.FindStringSubmatch(s); m != nil {
		isNext := m[1] == "next"
		amt, _ := strconv.Atoi(m[2])
		start, end = now, now
		switch m[3] {
		case "day":
			if isNext {
				end = now.AddDate(0, 0, amt)
			} else {
				start = now.AddDate(0, 0, -amt)
			}
		case "week":
			if isNext {
				end = now.AddDate(0, 0, 7*amt)
			} else {
				start = now.AddDate(0, 0, -7*amt)
			}
		case "month":
			if isNext {
				end = now.AddDate(0, amt, 0)
			} else {
				start = now.AddDate(0, -amt, 0)
			}
		case "year":
			if isNext {
				end = now.AddDate(amt, 0, 0)
			} else {
				start = now.AddDate(-amt, 0, 0)
			}
		}
		return start, end, true
	}

	switch s {
	case "today", "now":
		return now, now, true
	case "yesterday":
		d := now.AddDate(0, 0, -1)
		return d, d, true
	case "tomorrow":
		d := now.AddDate(0, 0, 1)
		return d, d, true
	case "day before yesterday":
		d := now.AddDate(0, 0, -2)
		return d, d, true
	case "day after tomorrow":
		d := now.AddDate(0, 0, 2)
		return d, d, true
	}

	if m := reKeywordSpan.FindStringSubmatch(s); m != nil {
		mod, kw := m[1], m[2]
		if mod == "previous" {
			mod = "last"
		}
		if mod == "current" {
			mod = "this"
		}

		switch kw {
		case "year":
			y := now.Year()
			if mod == "last" {
				y--
			} else if mod == "next" {
				y++
			}
			return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC), true
		case "month":
			ym := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			if mod == "last" {
				ym = ym.AddDate(0, -1, 0)
			} else if mod == "next" {
				ym = ym.AddDate(0, 1, 0)
			}
			return ym, endOfMonth(ym), true
		case "week":
			ref := now
			if mod == "last" {
				ref = ref.AddDate(0, 0, -7)
			} else if mod == "next" {
				ref = ref.AddDate(0, 0, 7)
			}
			s := mondayOf(ref)
			return s, s.AddDate(0, 0, 6), true
		case "quarter":
			q := (int(now.Month())-1)/3 + 1
			y := now.Year()
			if mod == "last" {
				q--
				if q == 0 {
					q = 4
					y--
				}
			} else if mod == "next" {
				q++
				if q == 5 {
					q = 1
					y++
				}
			}
			firstMonth := (q-1)*3 + 1
			qs := time.Date(y, time.Month(firstMonth), 1, 0, 0, 0, 0, time.UTC)
			qe := endOfMonth(time.Date(y, time.Month(firstMonth+2), 1, 0, 0, 0, 0, time.UTC))
			return qs, qe, true
		case "financial year":
			y := now.Year()
			if now.Month() < time.April {
				y--
			}
			if mod == "last" {
				y--
			} else if mod == "next" {
				y++
			}
			return time.Date(y, time.April, 1, 0, 0, 0, 0, time.UTC), time.Date(y+1, time.March, 31, 0, 0, 0, 0, time.UTC), true
		default:
			dow, known := weekdays[kw]
			if !known {
				return time.Time{}, time.Time{}, false
			}
			var d time.Time
			switch mod {
			case "last":
				d = previousWeekday(now, dow)
			case "next":
				d = nextWeekday(now, dow)
			default:
				d = nextOrSameWeekday(now, dow)
			}
			return d, d, true
		}
	}

	if m := reQuarter.FindStringSubmatch(s); m != nil {
		p := m[1]
		y, _ := strconv.Atoi(m[2])
		q := 1
		switch {
		case p == "q2" || strings.HasPrefix(p, "second"):
			q = 2
		case p == "q3" || strings.HasPrefix(p, "third"):
			q = 3
		case p == "q4" || strings.HasPrefix(p, "fourth"):
			q = 4
		}
		firstMonth := (q-1)*3 + 1
		qs := time.Date(y, time.Month(firstMonth), 1, 0, 0, 0, 0, time.UTC)
		qe := endOfMonth(time.Date(y, time.Month(firstMonth+2), 1, 0, 0, 0, 0, time.UTC))
		return qs, qe, true
	}

	if m := reFinYear.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return time.Date(y, time.April, 1, 0, 0, 0, 0, time.UTC), time.Date(y+1, time.March, 31, 0, 0, 0, 0, time.UTC), true
	}

	if m := reModifier.FindStringSubmatch(s); m != nil {
		mod, inner := m[1], m[2]
		innerStart, innerEnd, ok := parseDateSpan(inner)
		if ok {
			days := int(innerEnd.Sub(innerStart).Hours()/24) + 1
			third := days / 3
			switch mod {
			case "early", "beginning of", "start of":
				return innerStart, innerStart.AddDate(0, 0, third), true
			case "late", "end of":
				return innerEnd.AddDate(0, 0, -third), innerEnd, true
			case "mid":
				return innerStart.AddDate(0, 0, third), innerEnd.AddDate(0, 0, -third), true
			}
		}
	}

	cleanDate := strings.TrimSpace(reSpaces.ReplaceAllString(reOfWord.ReplaceAllString(s, ""), " "))

	if m := reISODate.FindStringSubmatch(cleanDate); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if loc, ok := safeDate(y, mo, d); ok {
			return loc, loc, true
		}
	}

	if m := reSlashDate.FindStringSubmatch(cleanDate); m != nil {
		p1, _ := strconv.Atoi(m[1])
		p2, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		mo, d := p2, p1
		if p1 > 12 {
			mo, d = p2, p1
		} else if p2 > 12 {
			mo, d = p1, p2
		}
		if loc, ok := safeDate(y, mo, d); ok {
			return loc, loc, true
		}
	}

	if reYearOnly.MatchString(cleanDate) {
		y, _ := strconv.Atoi(cleanDate)
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC), true
	}

	year, month, day := -1, -1, -1
	for _, p := range strings.Fields(cleanDate) {
		p = strings.TrimSuffix(p, ",")
		switch {
		case reYearOnly.MatchString(p):
			year, _ = strconv.Atoi(p)
		case reDayToken.MatchString(p):
			digits := strings.TrimFunc(p, func(r rune) bool { return r < '0' || r > '9' })
			day, _ = strconv.Atoi(digits)
		case reMonthToken.MatchString(p):
			month = monthFromAbbrev(p)
		}
	}

	if month != -1 && year != -1 {
		if day != -1 {
			if loc, ok := safeDate(year, month, day); ok {
				return loc, loc, true
			}
		} else {
			ym := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			return ym, endOfMonth(ym), true
		}
	}

	return time.Time{}, time.Time{}, false
}

func safeDate(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	loc := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if loc.Year() != y || int(loc.Month()) != m || loc.Day() != d {
		return time.Time{}, false // rejects overflow like Feb 30
	}
	return loc, true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfMonth(firstOfMonth time.Time) time.Time {
	return firstOfMonth.AddDate(0, 1, -1)
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	return t.AddDate(0, 0, -offset)
}

func previousWeekday(from time.Time, dow time.Weekday) time.Time {
	d := from.AddDate(0, 0, -1)
	for d.Weekday() != dow {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func nextWeekday(from time.Time, dow time.Weekday) time.Time {
	d := from.AddDate(0, 0, 1)
	for d.Weekday() != dow {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func nextOrSameWeekday(from time.Time, dow time.Weekday) time.Time {
	if from.Weekday() == dow {
		return from
	}
	return nextWeekday(from, dow)
}

func monthFromAbbrev(p string) int {
	switch {
	case strings.HasPrefix(p, "jan"):
		return 1
	case strings.HasPrefix(p, "feb"):
		return 2
	case strings.HasPrefix(p, "mar"):
		return 3
	case strings.HasPrefix(p, "apr"):
		return 4
	case strings.HasPrefix(p, "may"):
		return 5
	case strings.HasPrefix(p, "jun"):
		return 6
	case strings.HasPrefix(p, "jul"):
		return 7
	case strings.HasPrefix(p, "aug"):
		return 8
	case strings.HasPrefix(p, "sep"):
		return 9
	case strings.HasPrefix(p, "oct"):
		return 10
	case strings.HasPrefix(p, "nov"):
		return 11
	case strings.HasPrefix(p, "dec"):
		return 12
	}
	return -1
}
