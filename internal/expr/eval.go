package expr

import (
	"reflect"
)

// Eval computes the value of a constant sub-tree: a Value, a Member read off
// a captured value, or a conversion or negation of one. Anything that
// depends on the predicate parameter cannot be evaluated.
func Eval(e Expr) (any, error) {
	switch n := e.(type) {
	case Value:
		return n.V, nil
	case Member:
		if isParam(n.Target) {
			return nil, unsupported("where", "field %q of the entity cannot be evaluated as a constant", n.Name)
		}
		target, err := Eval(n.Target)
		if err != nil {
			return nil, err
		}
		return member(target, n.Name)
	case Unary:
		v, err := Eval(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case UnaryConvert:
			return v, nil
		case UnaryNot:
			if b, ok := v.(bool); ok {
				return !b, nil
			}
		case UnaryNegate:
			if neg, ok := negate(v); ok {
				return neg, nil
			}
		}
		return nil, unsupported("where", "cannot apply %s to %T", n.Op, v)
	case nil:
		return nil, unsupported("where", "empty expression")
	}
	return nil, unsupported("where", "%s node cannot be evaluated as a constant", e.kind())
}

// member reads a struct field, a string-keyed map entry or the result of a
// zero-argument method named name.
func member(target any, name string) (any, error) {
	if target == nil {
		return nil, unsupported("where", "cannot read %q of a nil value", name)
	}
	rv := reflect.ValueOf(target)
	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0].Interface(), nil
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, unsupported("where", "cannot read %q of a nil value", name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		if f, ok := rv.Type().FieldByName(name); ok && f.IsExported() {
			return rv.FieldByIndex(f.Index).Interface(), nil
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if !v.IsValid() {
				return nil, nil
			}
			return v.Interface(), nil
		}
	}
	return nil, unsupported("where", "%T has no member %q", target, name)
}

func negate(v any) (any, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	out := reflect.New(rv.Type()).Elem()
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out.SetInt(-rv.Int())
	case reflect.Float32, reflect.Float64:
		out.SetFloat(-rv.Float())
	default:
		return nil, false
	}
	return out.Interface(), true
}
