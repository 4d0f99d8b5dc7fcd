package dataset

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// TimeLayout is the layout used when a time cell is rendered as text.
const TimeLayout = "2006-01-02 15:04:05"

// Normalize converts driver and reader values to the supported cell types.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, int64, float64, bool, time.Time:
		return x
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// rank orders cells of different kinds: numbers, then times, then bools, then strings.
func rank(v any) int {
	switch v.(type) {
	case int64, float64:
		return 0
	case time.Time:
		return 1
	case bool:
		return 2
	default:
		return 3
	}
}

// Compare orders two non-null cells. Numbers compare numerically across
// int64 and float64, times chronologically and strings lexicographically.
func Compare(a, b any) int {
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
		return cmp.Compare(float64(x), b.(float64))
	case float64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, float64(y))
		}
		return cmp.Compare(x, b.(float64))
	case time.Time:
		return x.Compare(b.(time.Time))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	default:
		return strings.Compare(FormatValue(a), FormatValue(b))
	}
}

// Equal reports whether two cells hold the same value. Null equals nothing.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return Compare(a, b) == 0
}

// Distinct returns the non-null values of column, deduplicated and sorted ascending.
func (d *Dataset) Distinct(column string) ([]any, error) {
	j, err := d.ColumnIndex(column)
	if err != nil {
		return nil, err
	}
	var values []any
	for _, row := range d.rows {
		if row[j] != nil {
			values = append(values, row[j])
		}
	}
	slices.SortStableFunc(values, Compare)
	return slices.CompactFunc(values, Equal), nil
}

// FormatValue renders a cell as text. Null renders as the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(TimeLayout)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// EscapeNonASCII rewrites s so that it only holds printable ASCII. Backslashes
// and control characters are escaped and other code points become \xNN,
// \uNNNN or \UNNNNNNNN sequences. Invalid UTF-8 bytes become \ufffd.
func EscapeNonASCII(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c >= 0x7f || c == '\\' {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || (r >= 0x7f && r < 0x100):
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x7f:
			b.WriteRune(r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	return b.String()
}
