// Package sqlformat renders Go values as SQL literals.
//
// Literals are inlined into command text, so every string goes through
// Quote and every LIKE operand through Like.
package sqlformat

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const (
	// Null is the literal for nil values.
	Null = "NULL"

	// TimeLayout is used for time.Time literals.
	TimeLayout = "2006-01-02 15:04:05.000"
)

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
	valuerType   = reflect.TypeFor[driver.Valuer]()
	stringerType = reflect.TypeFor[fmt.Stringer]()
)

// Literal renders v as a SQL literal.
//
//	nil, typed nil, Valuer returning nil   NULL
//	string                                 'it''s'
//	bool                                   1 / 0
//	time.Time                              '2006-01-02 15:04:05.000'
//	time.Duration                          '15:04:05.000'
//	integer enum implementing Stringer     'Active'
//	[]byte                                 0x0a0b
//	other slices and arrays                (1,2,3), empty as (NULL)
func Literal(v any) (string, error) {
	if v == nil {
		return Null, nil
	}
	rv := reflect.ValueOf(v)

	if rv.Type().Implements(valuerType) {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Null, nil
		}
		dv, err := v.(driver.Valuer).Value()
		if err != nil {
			return "", fmt.Errorf("sqlformat: %T.Value: %w", v, err)
		}
		if dv == nil {
			return Null, nil
		}
		if _, same := dv.(driver.Valuer); !same {
			return Literal(dv)
		}
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Null, nil
		}
		rv = rv.Elem()
	}
	return literal(rv)
}

// IsNull reports whether v renders as NULL.
func IsNull(v any) bool {
	s, err := Literal(v)
	return err == nil && s == Null
}

func literal(rv reflect.Value) (string, error) {
	t := rv.Type()
	switch {
	case t == timeType:
		return Quote(rv.Interface().(time.Time).Format(TimeLayout)), nil
	case t == durationType:
		return Quote(Clock(time.Duration(rv.Int()))), nil
	}

	switch rv.Kind() {
	case reflect.String:
		return Quote(rv.String()), nil
	case reflect.Bool:
		if rv.Bool() {
			return "1", nil
		}
		return "0", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t.Implements(stringerType) {
			return Quote(rv.Interface().(fmt.Stringer).String()), nil
		}
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if t.Implements(stringerType) {
			return Quote(rv.Interface().(fmt.Stringer).String()), nil
		}
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			if rv.Kind() == reflect.Slice && rv.IsNil() {
				return Null, nil
			}
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return "0x" + hex.EncodeToString(b), nil
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return List(items)
	}
	return "", fmt.Errorf("sqlformat: unsupported value of type %s", t)
}

// List renders a parenthesized literal list. An empty list renders as
// (NULL) so "x IN (NULL)" stays valid and matches nothing.
func List(items []any) (string, error) {
	if len(items) == 0 {
		return "(" + Null + ")", nil
	}
	parts := make([]string, len(items))
	for i, it := range items {
		s, err := Literal(it)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}

// Quote wraps s in single quotes, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// EscapeLike escapes the LIKE wildcards %, _, [ and ] by wrapping each in
// brackets.
func EscapeLike(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%', '_', '[', ']':
			sb.WriteByte('[')
			sb.WriteByte(c)
			sb.WriteByte(']')
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// Like renders a quoted LIKE pattern with the escaped text between prefix
// and suffix (each "%" or "").
func Like(prefix, text, suffix string) string {
	return Quote(prefix + EscapeLike(text) + suffix)
}

// Clock formats d as "15:04:05.000". Hours are not wrapped at 24.
func Clock(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%s%02d:%02d:%02d.%03d", sign, h, m, s, ms)
}
