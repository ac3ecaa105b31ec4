package expr

import (
	"reflect"
	"strings"

	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/schema"
	"github.com/koustreak/datastore/internal/sqlformat"
)

// Quoter quotes an identifier for a SQL dialect.
type Quoter func(string) string

// Printer translates predicate trees into SQL for one entity schema.
// Unsupported constructs fail with errs.ErrKindTranslation; the printer never
// guesses.
type Printer struct {
	schema *schema.TableSchema
	quote  Quoter
}

// NewPrinter returns a Printer resolving field names against ts. A nil ts
// passes field names through unchanged; a nil quote leaves identifiers
// unquoted.
func NewPrinter(ts *schema.TableSchema, quote Quoter) *Printer {
	if quote == nil {
		quote = func(s string) string { return s }
	}
	return &Printer{schema: ts, quote: quote}
}

// Where renders e as a parenthesized infix predicate such as
// "((Name = 'Oscar') AND (Id = '25'))".
func (p *Printer) Where(e Expr) (string, error) {
	var sb strings.Builder
	if err := p.visit(&sb, e); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// OrderBy renders the column named by selector followed by ASC or DESC.
func (p *Printer) OrderBy(selector Expr, descending bool) (string, error) {
	if selector == nil {
		return "", unsupported("order by", "empty selector")
	}
	col, ok, err := p.column(selector)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", unsupported("order by", "selector %s must name a field of the entity", selector.kind())
	}
	if descending {
		return col + " DESC", nil
	}
	return col + " ASC", nil
}

func (p *Printer) visit(sb *strings.Builder, e Expr) error {
	switch n := e.(type) {
	case Binary:
		return p.binary(sb, n)
	case Unary:
		return p.unary(sb, n)
	case Member:
		col, ok, err := p.column(n)
		if err != nil {
			return err
		}
		if ok {
			sb.WriteString(col)
			return nil
		}
		return p.constant(sb, n)
	case Value:
		return p.constant(sb, n)
	case Call:
		return p.call(sb, n)
	case nil:
		return unsupported("where", "empty expression")
	}
	return unsupported("where", "expression node %T is not supported", e)
}

func (p *Printer) binary(sb *strings.Builder, b Binary) error {
	var op string
	switch b.Op {
	case OpAnd:
		op = " AND "
	case OpOr:
		op = " OR "
	case OpEq:
		op = " = "
	case OpNe:
		op = " <> "
	case OpLt:
		op = " < "
	case OpLe:
		op = " <= "
	case OpGt:
		op = " > "
	case OpGe:
		op = " >= "
	default:
		return unsupported("where", "binary operator %s is not supported", b.Op)
	}

	left, right := b.Left, b.Right
	if b.Op == OpEq || b.Op == OpNe {
		if p.isNull(left) && !p.isNull(right) {
			left, right = right, left
		}
		if p.isNull(right) {
			op = " IS "
			if b.Op == OpNe {
				op = " IS NOT "
			}
		}
	}

	sb.WriteByte('(')
	if err := p.visit(sb, left); err != nil {
		return err
	}
	sb.WriteString(op)
	if err := p.visit(sb, right); err != nil {
		return err
	}
	sb.WriteByte(')')
	return nil
}

func (p *Printer) unary(sb *strings.Builder, u Unary) error {
	switch u.Op {
	case UnaryConvert:
		return p.visit(sb, u.X)
	case UnaryNot:
		sb.WriteString("NOT ")
		return p.visit(sb, u.X)
	case UnaryNegate:
		if _, ok, err := p.column(u.X); err != nil {
			return err
		} else if !ok {
			return p.constant(sb, u)
		}
		sb.WriteString("(-")
		if err := p.visit(sb, u.X); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil
	}
	return unsupported("where", "unary operator %s is not supported", u.Op)
}

func (p *Printer) call(sb *strings.Builder, c Call) error {
	col, ok, err := p.column(c.Target)
	if err != nil {
		return err
	}
	if !ok {
		return unsupported("where", "method %s must be called on a field of the entity", c.Method)
	}

	if c.Method == MethodIn {
		var items []any
		for _, a := range c.Args {
			v, err := Eval(a)
			if err != nil {
				return err
			}
			items = append(items, v)
		}
		if len(items) == 1 {
			if rv := reflect.ValueOf(items[0]); rv.IsValid() &&
				(rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) &&
				rv.Type().Elem().Kind() != reflect.Uint8 {
				items = make([]any, rv.Len())
				for i := range items {
					items[i] = rv.Index(i).Interface()
				}
			}
		}
		list, err := sqlformat.List(items)
		if err != nil {
			return translationError(err)
		}
		sb.WriteString("(" + col + " IN " + list + ")")
		return nil
	}

	if len(c.Args) != 1 {
		return unsupported("where", "method %s takes exactly one argument", c.Method)
	}
	arg, err := Eval(c.Args[0])
	if err != nil {
		return err
	}
	if sqlformat.IsNull(arg) {
		sb.WriteString("(" + col + " IS NULL)")
		return nil
	}
	s, ok := arg.(string)
	if !ok {
		return unsupported("where", "method %s requires a string argument, got %T", c.Method, arg)
	}

	var pattern string
	switch c.Method {
	case MethodContains:
		pattern = sqlformat.Like("%", s, "%")
	case MethodStartsWith:
		pattern = sqlformat.Like("", s, "%")
	case MethodEndsWith:
		pattern = sqlformat.Like("%", s, "")
	default:
		return unsupported("where", "method %s is not supported", c.Method)
	}
	sb.WriteString("(" + col + " LIKE " + pattern + ")")
	return nil
}

func (p *Printer) constant(sb *strings.Builder, e Expr) error {
	v, err := Eval(e)
	if err != nil {
		return err
	}
	lit, err := sqlformat.Literal(v)
	if err != nil {
		return translationError(err)
	}
	sb.WriteString(lit)
	return nil
}

// column resolves e to a quoted column name when it is a member of the
// predicate parameter, possibly wrapped in conversions.
func (p *Printer) column(e Expr) (string, bool, error) {
	for {
		u, ok := e.(Unary)
		if !ok || u.Op != UnaryConvert {
			break
		}
		e = u.X
	}
	m, ok := e.(Member)
	if !ok || !isParam(m.Target) {
		return "", false, nil
	}
	if p.schema == nil {
		return p.quote(m.Name), true, nil
	}
	c, ok := p.schema.Lookup(m.Name)
	if !ok {
		return "", false, unsupported("where", "%s has no mapped field %q", p.schema.EntityType, m.Name)
	}
	return p.quote(c.ColumnName), true, nil
}

func (p *Printer) isNull(e Expr) bool {
	if _, ok, _ := p.column(e); ok {
		return false
	}
	v, err := Eval(e)
	return err == nil && sqlformat.IsNull(v)
}

func isParam(e Expr) bool {
	for {
		switch n := e.(type) {
		case Param:
			return true
		case Unary:
			if n.Op != UnaryConvert {
				return false
			}
			e = n.X
		default:
			return false
		}
	}
}

func unsupported(op, format string, args ...any) error {
	return errs.Newf(errs.ErrKindTranslation, format, args...).WithOp(op)
}

func translationError(err error) error {
	return errs.Wrap(errs.ErrKindTranslation, "cannot render literal", err).WithOp("where")
}
