// Package expr evaluates the ${...} arithmetic/date expression blocks
// embedded in query text, and compiles the named inline column transforms
// defined by a query's trailing functions block. Evaluation runs inside a
// sandboxed Starlark thread with a step limit and wall timeout; the only
// names visible are the builtins below plus the caller's macro bindings.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Date is a calendar date value, day precision.
type Date struct {
	t time.Time // midnight UTC
}

// NewDate builds a Date from a wall-clock moment.
func NewDate(t time.Time) Date {
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO yyyy-mm-dd date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return Date{t: t}, nil
}

func (d Date) String() string        { return d.t.Format("2006-01-02") }
func (d Date) Type() string          { return "date" }
func (d Date) Freeze()               {}
func (d Date) Truth() starlark.Bool  { return starlark.True }
func (d Date) Hash() (uint32, error) { return starlark.String(d.String()).Hash() }

// Time returns the underlying midnight-UTC moment.
func (d Date) Time() time.Time { return d.t }

// Binary implements Date±Period, Date±Duration (whole days), Date±int
// (days), and Date−Date→Period.
func (d Date) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch other := y.(type) {
	case Duration:
		if other.d%(24*time.Hour) != 0 {
			return nil, fmt.Errorf("date %s duration: %s is not a whole number of days", op, other)
		}
		days := int(other.d / (24 * time.Hour))
		switch op {
		case syntax.PLUS:
			return Date{t: d.t.AddDate(0, 0, days)}, nil
		case syntax.MINUS:
			if side == starlark.Right {
				return nil, nil // duration - date is meaningless
			}
			return Date{t: d.t.AddDate(0, 0, -days)}, nil
		}
	case Period:
		switch op {
		case syntax.PLUS:
			return Date{t: other.shift(d.t, 1)}, nil
		case syntax.MINUS:
			if side == starlark.Right {
				return nil, nil // period - date is meaningless
			}
			return Date{t: other.shift(d.t, -1)}, nil
		}
	case Date:
		if op == syntax.MINUS {
			a, b := d.t, other.t
			if side == starlark.Right {
				a, b = b, a
			}
			days := int(a.Sub(b).Hours() / 24)
			return Period{Days: days}, nil
		}
	case starlark.Int:
		days, err := starlark.AsInt32(other)
		if err != nil {
			return nil, err
		}
		switch op {
		case syntax.PLUS:
			return Date{t: d.t.AddDate(0, 0, days)}, nil
		case syntax.MINUS:
			if side == starlark.Right {
				return nil, nil
			}
			return Date{t: d.t.AddDate(0, 0, -days)}, nil
		}
	}
	return nil, nil
}

// DateTime is a second-precision timestamp value.
type DateTime struct {
	t time.Time
}

// ParseDateTime parses "yyyy-mm-dd hh:mm:ss" or an ISO date.
func ParseDateTime(s string) (DateTime, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateTime{t: t}, nil
		}
	}
	return DateTime{}, fmt.Errorf("invalid datetime %q", s)
}

func (d DateTime) String() string        { return d.t.Format("2006-01-02 15:04:05") }
func (d DateTime) Type() string          { return "datetime" }
func (d DateTime) Freeze()               {}
func (d DateTime) Truth() starlark.Bool  { return starlark.True }
func (d DateTime) Hash() (uint32, error) { return starlark.String(d.String()).Hash() }

// Time returns the underlying moment.
func (d DateTime) Time() time.Time { return d.t }

// Binary implements DateTime±Duration and DateTime−DateTime→Duration.
func (d DateTime) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch other := y.(type) {
	case Duration:
		switch op {
		case syntax.PLUS:
			return DateTime{t: d.t.Add(other.d)}, nil
		case syntax.MINUS:
			if side == starlark.Right {
				return nil, nil
			}
			return DateTime{t: d.t.Add(-other.d)}, nil
		}
	case DateTime:
		if op == syntax.MINUS {
			a, b := d.t, other.t
			if side == starlark.Right {
				a, b = b, a
			}
			return Duration{d: a.Sub(b)}, nil
		}
	}
	return nil, nil
}

// Duration is a fixed-length span of time (ISO-8601 "PT..." forms).
type Duration struct {
	d time.Duration
}

// ParseDuration parses ISO-8601 time durations such as "PT1H30M" or "PT90S",
// plus "P<n>D" treated as exact 24-hour days.
func ParseDuration(s string) (Duration, error) {
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "P") {
		return Duration{}, fmt.Errorf("invalid duration %q", s)
	}
	rest := upper[1:]

	var total time.Duration
	// Optional day component before the time designator.
	if i := strings.IndexByte(rest, 'T'); i >= 0 {
		if i > 0 {
			days, err := parseComponent(rest[:i], 'D')
			if err != nil {
				return Duration{}, fmt.Errorf("invalid duration %q", s)
			}
			total += time.Duration(days) * 24 * time.Hour
		}
		rest = rest[i+1:]
		num := ""
		for _, r := range rest {
			switch {
			case r >= '0' && r <= '9' || r == '.' || r == '-':
				num += string(r)
			case r == 'H' || r == 'M' || r == 'S':
				if num == "" {
					return Duration{}, fmt.Errorf("invalid duration %q", s)
				}
				f, err := strconv.ParseFloat(num, 64)
				if err != nil {
					return Duration{}, fmt.Errorf("invalid duration %q", s)
				}
				unit := map[rune]time.Duration{'H': time.Hour, 'M': time.Minute, 'S': time.Second}[r]
				total += time.Duration(f * float64(unit))
				num = ""
			default:
				return Duration{}, fmt.Errorf("invalid duration %q", s)
			}
		}
		if num != "" {
			return Duration{}, fmt.Errorf("invalid duration %q", s)
		}
		return Duration{d: total}, nil
	}

	days, err := parseComponent(rest, 'D')
	if err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q", s)
	}
	return Duration{d: time.Duration(days) * 24 * time.Hour}, nil
}

func parseComponent(s string, suffix byte) (int, error) {
	if len(s) < 2 || s[len(s)-1] != suffix {
		return 0, fmt.Errorf("missing %c component", suffix)
	}
	return strconv.Atoi(s[:len(s)-1])
}

func (d Duration) String() string {
	v := d.d
	neg := v < 0
	if neg {
		v = -v
	}
	h := v / time.Hour
	m := (v % time.Hour) / time.Minute
	s := (v % time.Minute) / time.Second
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString("PT")
	if h > 0 {
		fmt.Fprintf(&sb, "%dH", h)
	}
	if m > 0 {
		fmt.Fprintf(&sb, "%dM", m)
	}
	if s > 0 || (h == 0 && m == 0) {
		fmt.Fprintf(&sb, "%dS", s)
	}
	return sb.String()
}

func (d Duration) Type() string          { return "duration" }
func (d Duration) Freeze()               {}
func (d Duration) Truth() starlark.Bool  { return starlark.Bool(d.d != 0) }
func (d Duration) Hash() (uint32, error) { return starlark.String(d.String()).Hash() }

// Binary implements Duration±Duration.
func (d Duration) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, ok := y.(Duration)
	if !ok {
		return nil, nil
	}
	switch op {
	case syntax.PLUS:
		return Duration{d: d.d + other.d}, nil
	case syntax.MINUS:
		if side == starlark.Right {
			return Duration{d: other.d - d.d}, nil
		}
		return Duration{d: d.d - other.d}, nil
	}
	return nil, nil
}

// Period is a calendar span: years, months, and days, applied with
// calendar arithmetic rather than as a fixed number of seconds.
type Period struct {
	Years, Months, Days int
}

// ParsePeriod parses ISO-8601 calendar periods such as "P1D", "P2M", "P1Y2M3D".
func ParsePeriod(s string) (Period, error) {
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "P") || len(upper) < 3 || strings.ContainsRune(upper, 'T') {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	var p Period
	num := ""
	for _, r := range upper[1:] {
		switch {
		case r >= '0' && r <= '9' || r == '-':
			num += string(r)
		case r == 'Y' || r == 'M' || r == 'D':
			if num == "" {
				return Period{}, fmt.Errorf("invalid period %q", s)
			}
			n, err := strconv.Atoi(num)
			if err != nil {
				return Period{}, fmt.Errorf("invalid period %q", s)
			}
			switch r {
			case 'Y':
				p.Years = n
			case 'M':
				p.Months = n
			case 'D':
				p.Days = n
			}
			num = ""
		default:
			return Period{}, fmt.Errorf("invalid period %q", s)
		}
	}
	if num != "" {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	return p, nil
}

func (p Period) shift(t time.Time, sign int) time.Time {
	return t.AddDate(sign*p.Years, sign*p.Months, sign*p.Days)
}

func (p Period) String() string {
	if p.Years == 0 && p.Months == 0 && p.Days == 0 {
		return "P0D"
	}
	var sb strings.Builder
	sb.WriteByte('P')
	if p.Years != 0 {
		fmt.Fprintf(&sb, "%dY", p.Years)
	}
	if p.Months != 0 {
		fmt.Fprintf(&sb, "%dM", p.Months)
	}
	if p.Days != 0 {
		fmt.Fprintf(&sb, "%dD", p.Days)
	}
	return sb.String()
}

func (p Period) Type() string          { return "period" }
func (p Period) Freeze()               {}
func (p Period) Truth() starlark.Bool  { return starlark.Bool(p != Period{}) }
func (p Period) Hash() (uint32, error) { return starlark.String(p.String()).Hash() }

// Binary implements Period±Period and defers Date+Period to the Date side.
func (p Period) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, ok := y.(Period)
	if !ok {
		return nil, nil
	}
	switch op {
	case syntax.PLUS:
		return Period{p.Years + other.Years, p.Months + other.Months, p.Days + other.Days}, nil
	case syntax.MINUS:
		a, b := p, other
		if side == starlark.Right {
			a, b = b, a
		}
		return Period{a.Years - b.Years, a.Months - b.Months, a.Days - b.Days}, nil
	}
	return nil, nil
}

var (
	_ starlark.HasBinary = Date{}
	_ starlark.HasBinary = DateTime{}
	_ starlark.HasBinary = Duration{}
	_ starlark.HasBinary = Period{}
)
