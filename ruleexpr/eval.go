package ruleexpr

import (
	"mcpruntime/value"
)

// Env supplies variable and function bindings during evaluation.
// Unknown identifiers and function names resolve to null rather than
// erroring (spec §4.4 "unknown identifiers/functions resolve to null").
type Env interface {
	Resolve(name string) (value.Value, bool)
	Call(name string, args []value.Value) (value.Value, bool)
}

// MapEnv is a simple Env backed by plain maps, sufficient for callers
// that only need flat variable lookups and a handful of builtin functions.
type MapEnv struct {
	Vars  map[string]value.Value
	Funcs map[string]func(args []value.Value) value.Value
}

func (e MapEnv) Resolve(name string) (value.Value, bool) {
	v, ok := e.Vars[name]
	return v, ok
}

func (e MapEnv) Call(name string, args []value.Value) (value.Value, bool) {
	fn, ok := e.Funcs[name]
	if !ok {
		return value.Null(), false
	}
	return fn(args), true
}

// Eval evaluates expr against env. It never panics: a malformed
// arithmetic operand combination (e.g. adding an array to a string)
// degrades to null, and an ordering comparison between operands that are
// not both numbers or both strings yields false, instead of erroring.
func Eval(expr Expr, env Env) value.Value {
	switch n := expr.(type) {
	case *Literal:
		switch n.Kind {
		case litNumber:
			return value.Float(float32(n.Num))
		case litString:
			return value.String(n.Str)
		case litBool:
			return value.Bool(n.Bool)
		default:
			return value.Null()
		}
	case *Ident:
		if env == nil {
			return value.Null()
		}
		v, ok := env.Resolve(n.Name)
		if !ok {
			return value.Null()
		}
		return v
	case *Call:
		args := make([]value.Value, len(n.Args))
		for i, a := range n.Args {
			args[i] = Eval(a, env)
		}
		if env == nil {
			return value.Null()
		}
		v, ok := env.Call(n.Name, args)
		if !ok {
			return value.Null()
		}
		return v
	case *Unary:
		return evalUnary(n, env)
	case *Binary:
		return evalBinary(n, env)
	default:
		return value.Null()
	}
}

func evalUnary(n *Unary, env Env) value.Value {
	switch n.Op {
	case "!":
		return value.Bool(!truthy(Eval(n.X, env)))
	case "-":
		x := Eval(n.X, env)
		f, ok := x.Number()
		if !ok {
			return value.Null()
		}
		return value.Float(float32(-f))
	default:
		return value.Null()
	}
}

func evalBinary(n *Binary, env Env) value.Value {
	// && and || short-circuit: the right side is only evaluated when it
	// can affect the result (spec §4.4).
	switch n.Op {
	case "&&":
		l := Eval(n.Left, env)
		if !truthy(l) {
			return value.Bool(false)
		}
		return value.Bool(truthy(Eval(n.Right, env)))
	case "||":
		l := Eval(n.Left, env)
		if truthy(l) {
			return value.Bool(true)
		}
		return value.Bool(truthy(Eval(n.Right, env)))
	}

	l := Eval(n.Left, env)
	r := Eval(n.Right, env)

	switch n.Op {
	case "==", "!=":
		return equality(n.Op, l, r)
	case "<", "<=", ">", ">=":
		return compare(n.Op, l, r)
	case "+", "-", "*", "/", "%":
		return arith(n.Op, l, r)
	default:
		return value.Null()
	}
}

// EvalOperator applies one of the binary operators this package's grammar
// supports directly to two already-resolved Values, without lexing or
// parsing an expression string. The automation engine's condition triggers
// (spec §4.4, §3 "Automation Rule") use this to compare a sensor reading
// against an expected value using the same operator semantics rule
// expressions get.
func EvalOperator(op string, l, r value.Value) value.Value {
	switch op {
	case "==", "!=":
		return equality(op, l, r)
	case "<", "<=", ">", ">=":
		return compare(op, l, r)
	case "+", "-", "*", "/", "%":
		return arith(op, l, r)
	default:
		return value.Null()
	}
}

// equality implements spec §4.4 "Equality compares within a type; across
// types, null": cross-Kind comparisons are neither true nor false.
func equality(op string, l, r value.Value) value.Value {
	if l.Kind() != r.Kind() {
		return value.Null()
	}
	if op == "==" {
		return value.Bool(l.Equal(r))
	}
	return value.Bool(!l.Equal(r))
}

func truthy(v value.Value) bool {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindNull:
		return false
	default:
		n, ok := v.Number()
		if ok {
			return n != 0
		}
		if v.Kind() == value.KindString {
			s, _ := v.AsString()
			return s != ""
		}
		return false
	}
}

// compare supports both numeric and lexicographic string comparison, the
// latter a supplement over the base grammar so rules can gate on sensor
// labels and firmware version strings, not just numbers.
func compare(op string, l, r value.Value) value.Value {
	if l.Kind() == value.KindString && r.Kind() == value.KindString {
		ls, _ := l.AsString()
		rs, _ := r.AsString()
		switch op {
		case "<":
			return value.Bool(ls < rs)
		case "<=":
			return value.Bool(ls <= rs)
		case ">":
			return value.Bool(ls > rs)
		case ">=":
			return value.Bool(ls >= rs)
		}
	}

	ln, lok := l.Number()
	rn, rok := r.Number()
	if !lok || !rok {
		return value.Bool(false)
	}
	switch op {
	case "<":
		return value.Bool(ln < rn)
	case "<=":
		return value.Bool(ln <= rn)
	case ">":
		return value.Bool(ln > rn)
	case ">=":
		return value.Bool(ln >= rn)
	default:
		return value.Bool(false)
	}
}

func arith(op string, l, r value.Value) value.Value {
	ln, lok := l.Number()
	rn, rok := r.Number()
	if !lok || !rok {
		return value.Null()
	}
	switch op {
	case "+":
		return value.Float(float32(ln + rn))
	case "-":
		return value.Float(float32(ln - rn))
	case "*":
		return value.Float(float32(ln * rn))
	case "/":
		if rn == 0 {
			return value.Null()
		}
		return value.Float(float32(ln / rn))
	case "%":
		if rn == 0 {
			return value.Null()
		}
		li, ri := int64(ln), int64(rn)
		return value.Int(int32(li % ri))
	default:
		return value.Null()
	}
}
