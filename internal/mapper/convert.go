package mapper

import (
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/datastore/internal/errs"
)

var (
	scannerType  = reflect.TypeFor[sql.Scanner]()
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
	bytesType    = reflect.TypeFor[[]byte]()
)

// timeLayouts are tried in order when a driver hands back a time as text
// (SQLite stores DATETIME as TEXT).
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Convert coerces a driver value (or any Go value) into a value of type t.
// nil becomes the zero value of t. Pointer targets are allocated, and types
// implementing sql.Scanner through their pointer are scanned.
func Convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.Type().AssignableTo(t) {
			return rv, nil
		}
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		rv = rv.Elem()
	}
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if reflect.PointerTo(t).Implements(scannerType) {
		p := reflect.New(t)
		if err := p.Interface().(sql.Scanner).Scan(rv.Interface()); err != nil {
			return reflect.Value{}, convertError(rv, t, err)
		}
		return p.Elem(), nil
	}

	if t.Kind() == reflect.Pointer {
		elem, err := Convert(rv.Interface(), t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	}

	out, err := coerce(rv, t)
	if err != nil {
		return reflect.Value{}, convertError(rv, t, err)
	}
	return out, nil
}

func coerce(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	src := rv.Kind()

	// Raw text from the driver is parsed like a string.
	if rv.Type() == bytesType && t.Kind() != reflect.Slice {
		rv = reflect.ValueOf(string(rv.Bytes()))
		src = reflect.String
	}

	switch {
	case t == timeType:
		if src == reflect.String {
			return parseTime(rv.String())
		}
	case t == durationType && src == reflect.String:
		d, err := time.ParseDuration(rv.String())
		if err == nil {
			return reflect.ValueOf(d), nil
		}
		return parseClock(rv.String())
	}

	switch t.Kind() {
	case reflect.Bool:
		switch {
		case isInt(src):
			return reflect.ValueOf(rv.Int() != 0).Convert(t), nil
		case isUint(src):
			return reflect.ValueOf(rv.Uint() != 0).Convert(t), nil
		case src == reflect.String:
			b, err := strconv.ParseBool(rv.String())
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(b).Convert(t), nil
		case src == reflect.Bool:
			return rv.Convert(t), nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out := reflect.New(t).Elem()
		var n int64
		switch {
		case isInt(src):
			n = rv.Int()
		case isUint(src):
			if rv.Uint() > math.MaxInt64 {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", rv.Uint(), t)
			}
			n = int64(rv.Uint())
		case isFloat(src):
			f := rv.Float()
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return reflect.Value{}, fmt.Errorf("%v overflows %s", f, t)
			}
			if f != float64(int64(f)) {
				return reflect.Value{}, fmt.Errorf("%v has a fractional part", f)
			}
			n = int64(f)
		case src == reflect.Bool:
			if rv.Bool() {
				n = 1
			}
		case src == reflect.String:
			p, err := strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
			if err != nil {
				return reflect.Value{}, err
			}
			n = p
		default:
			return reflect.Value{}, errUnsupported
		}
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
		}
		out.SetInt(n)
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out := reflect.New(t).Elem()
		var n uint64
		switch {
		case isInt(src):
			if rv.Int() < 0 {
				return reflect.Value{}, fmt.Errorf("%d is negative", rv.Int())
			}
			n = uint64(rv.Int())
		case isUint(src):
			n = rv.Uint()
		case src == reflect.String:
			p, err := strconv.ParseUint(strings.TrimSpace(rv.String()), 10, 64)
			if err != nil {
				return reflect.Value{}, err
			}
			n = p
		default:
			return reflect.Value{}, errUnsupported
		}
		if out.OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
		}
		out.SetUint(n)
		return out, nil

	case reflect.Float32, reflect.Float64:
		out := reflect.New(t).Elem()
		var f float64
		switch {
		case isInt(src):
			f = float64(rv.Int())
		case isUint(src):
			f = float64(rv.Uint())
		case isFloat(src):
			f = rv.Float()
		case src == reflect.String:
			p, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
			if err != nil {
				return reflect.Value{}, err
			}
			f = p
		default:
			return reflect.Value{}, errUnsupported
		}
		if out.OverflowFloat(f) {
			return reflect.Value{}, fmt.Errorf("%v overflows %s", f, t)
		}
		out.SetFloat(f)
		return out, nil

	case reflect.String:
		out := reflect.New(t).Elem()
		switch {
		case src == reflect.String:
			out.SetString(rv.String())
		case rv.Type() == timeType:
			out.SetString(rv.Interface().(time.Time).Format(time.RFC3339Nano))
		case isInt(src), isUint(src), isFloat(src), src == reflect.Bool:
			out.SetString(fmt.Sprint(rv.Interface()))
		default:
			return reflect.Value{}, errUnsupported
		}
		return out, nil

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 && src == reflect.String {
			return reflect.ValueOf([]byte(rv.String())).Convert(t), nil
		}
		if rv.Type().ConvertibleTo(t) {
			return rv.Convert(t), nil
		}
	}

	if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, errUnsupported
}

var errUnsupported = fmt.Errorf("no conversion available")

func parseTime(s string) (reflect.Value, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return reflect.ValueOf(ts), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("unrecognised time %q", s)
}

// parseClock reads "15:04:05[.000]" as a duration.
func parseClock(s string) (reflect.Value, error) {
	ts, err := time.Parse("15:04:05.999999999", s)
	if err != nil {
		return reflect.Value{}, err
	}
	d := time.Duration(ts.Hour())*time.Hour +
		time.Duration(ts.Minute())*time.Minute +
		time.Duration(ts.Second())*time.Second +
		time.Duration(ts.Nanosecond())
	return reflect.ValueOf(d), nil
}

func convertError(rv reflect.Value, t reflect.Type, cause error) error {
	return errs.Wrap(errs.ErrKindMapping, fmt.Sprintf("cannot convert %s to %s", rv.Type(), t), cause)
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
