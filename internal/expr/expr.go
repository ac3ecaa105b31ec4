// Package expr models boolean predicates over entity fields as a small
// expression tree and translates them into SQL WHERE and ORDER BY fragments.
//
// Trees are normally built with the helpers:
//
//	expr.Or(
//	    expr.And(expr.F("Name").Eq("Oscar"), expr.F("Id").Eq("25")),
//	    expr.F("Id").Eq("30"),
//	)
//
// F names a field of the entity the predicate is evaluated against. Values
// captured from the caller are inlined as literals, either directly (V) or by
// reading a field of a captured object at translation time (Capture).
package expr

import "fmt"

// Expr is a node of a predicate tree.
type Expr interface {
	kind() string
}

// Op is a binary operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr

	// Arithmetic operators can be represented but are not translated.
	OpAdd
	OpSub
	OpMul
	OpDiv
)

var opNames = map[Op]string{
	OpEq: "Equal", OpNe: "NotEqual", OpLt: "LessThan", OpLe: "LessThanOrEqual",
	OpGt: "GreaterThan", OpGe: "GreaterThanOrEqual", OpAnd: "And", OpOr: "Or",
	OpAdd: "Add", OpSub: "Subtract", OpMul: "Multiply", OpDiv: "Divide",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// UnaryOp is a unary operator.
type UnaryOp int

const (
	UnaryNot UnaryOp = iota
	UnaryConvert
	UnaryNegate
)

func (o UnaryOp) String() string {
	switch o {
	case UnaryNot:
		return "Not"
	case UnaryConvert:
		return "Convert"
	case UnaryNegate:
		return "Negate"
	}
	return fmt.Sprintf("UnaryOp(%d)", int(o))
}

// Method is a call supported on string or list operands.
type Method int

const (
	MethodContains Method = iota
	MethodStartsWith
	MethodEndsWith
	MethodIn
)

func (m Method) String() string {
	switch m {
	case MethodContains:
		return "Contains"
	case MethodStartsWith:
		return "StartsWith"
	case MethodEndsWith:
		return "EndsWith"
	case MethodIn:
		return "In"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Binary applies Op to Left and Right.
type Binary struct {
	Op          Op
	Left, Right Expr
}

// Unary applies Op to X.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// Param is the entity the predicate is evaluated against.
type Param struct{}

// Member reads the field Name of Target. Off a Param it names a column;
// otherwise it is evaluated and inlined as a literal.
type Member struct {
	Target Expr
	Name   string
}

// Value is a captured constant.
type Value struct {
	V any
}

// Call invokes Method on Target with Args.
type Call struct {
	Method Method
	Target Expr
	Args   []Expr
}

func (Binary) kind() string { return "binary" }
func (Unary) kind() string  { return "unary" }
func (Param) kind() string  { return "parameter" }
func (Member) kind() string { return "member" }
func (Value) kind() string  { return "constant" }
func (Call) kind() string   { return "call" }

// F returns the member Name of the predicate parameter.
func F(name string) Member {
	return Member{Target: Param{}, Name: name}
}

// V wraps a constant.
func V(v any) Value {
	return Value{V: v}
}

// Capture reads field of obj when the predicate is translated, the way a
// closure reads a variable it captured.
func Capture(obj any, field string) Member {
	return Member{Target: Value{V: obj}, Name: field}
}

// And joins predicates with AND, folding to the left.
func And(a, b Expr, more ...Expr) Expr {
	return fold(OpAnd, a, b, more)
}

// Or joins predicates with OR, folding to the left.
func Or(a, b Expr, more ...Expr) Expr {
	return fold(OpOr, a, b, more)
}

func fold(op Op, a, b Expr, more []Expr) Expr {
	e := Binary{Op: op, Left: a, Right: b}
	for _, m := range more {
		e = Binary{Op: op, Left: e, Right: m}
	}
	return e
}

// Not negates x.
func Not(x Expr) Unary {
	return Unary{Op: UnaryNot, X: x}
}

// Conv marks a type conversion of x; it is transparent in SQL.
func Conv(x Expr) Unary {
	return Unary{Op: UnaryConvert, X: x}
}

// Neg negates a numeric operand.
func Neg(x any) Unary {
	return Unary{Op: UnaryNegate, X: operand(x)}
}

func Eq(l, r any) Binary { return Binary{OpEq, operand(l), operand(r)} }
func Ne(l, r any) Binary { return Binary{OpNe, operand(l), operand(r)} }
func Lt(l, r any) Binary { return Binary{OpLt, operand(l), operand(r)} }
func Le(l, r any) Binary { return Binary{OpLe, operand(l), operand(r)} }
func Gt(l, r any) Binary { return Binary{OpGt, operand(l), operand(r)} }
func Ge(l, r any) Binary { return Binary{OpGe, operand(l), operand(r)} }

// operand wraps plain Go values in a Value.
func operand(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return Value{V: v}
}

func (m Member) Eq(v any) Binary { return Eq(m, v) }
func (m Member) Ne(v any) Binary { return Ne(m, v) }
func (m Member) Lt(v any) Binary { return Lt(m, v) }
func (m Member) Le(v any) Binary { return Le(m, v) }
func (m Member) Gt(v any) Binary { return Gt(m, v) }
func (m Member) Ge(v any) Binary { return Ge(m, v) }

// IsNull compares the member with NULL.
func (m Member) IsNull() Binary { return Eq(m, nil) }

// IsNotNull compares the member with NOT NULL.
func (m Member) IsNotNull() Binary { return Ne(m, nil) }

// Contains matches values containing s. Wildcards in s are matched literally.
func (m Member) Contains(s any) Call { return m.call(MethodContains, s) }

// StartsWith matches values beginning with s.
func (m Member) StartsWith(s any) Call { return m.call(MethodStartsWith, s) }

// EndsWith matches values ending with s.
func (m Member) EndsWith(s any) Call { return m.call(MethodEndsWith, s) }

// In matches values equal to one of vs. A single slice argument is expanded.
func (m Member) In(vs ...any) Call {
	c := Call{Method: MethodIn, Target: m, Args: make([]Expr, len(vs))}
	for i, v := range vs {
		c.Args[i] = operand(v)
	}
	return c
}

func (m Member) call(method Method, arg any) Call {
	return Call{Method: method, Target: m, Args: []Expr{operand(arg)}}
}
