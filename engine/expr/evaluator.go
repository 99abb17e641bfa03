package expr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agentctl/agentctl/engine/core"
)

// Evaluator evaluates GitHub Actions-style expressions.
//
// Supported syntax:
//   - variable references: jobs.lint.outputs.has_errors, jobs.lint.status
//   - comparisons: ==, !=, <, >, <=, >= (numeric when both sides parse as
//     numbers, lexicographic otherwise)
//   - logical operators: &&, ||, !
//   - functions: success(), failure(), always(), cancelled()
//   - string literals: 'value' or "value"
type Evaluator struct{}

func New() *Evaluator {
	return &Evaluator{}
}

var interpolatePattern = regexp.MustCompile(`\$\{\{\s*([^}]+?)\s*\}\}`)

// Evaluate parses expression and returns its boolean value. The surrounding
// ${{ }} wrapper is optional. An empty expression is unconditionally true.
func (e *Evaluator) Evaluate(expression string, ctx *Context) (bool, error) {
	expr := unwrap(expression)
	if expr == "" {
		return true, nil
	}
	n, err := parse(expr)
	if err != nil {
		return false, err
	}
	return evalBool(n, ctx), nil
}

// EvaluateString returns the string value of an expression: the raw resolved
// value for a bare variable reference, "true"/"false" for anything else.
func (e *Evaluator) EvaluateString(expression string, ctx *Context) (string, error) {
	expr := unwrap(expression)
	if expr == "" {
		return "", nil
	}
	n, err := parse(expr)
	if err != nil {
		return "", err
	}
	if v, ok := n.(valueNode); ok && !v.quoted {
		resolved, _ := ctx.Resolve(v.raw)
		return resolved, nil
	}
	if evalBool(n, ctx) {
		return "true", nil
	}
	return "false", nil
}

// Interpolate replaces every ${{ expr }} occurrence in text with the
// expression's string value. Unresolved variable references interpolate as
// empty strings; malformed expressions are reported as errors.
func (e *Evaluator) Interpolate(text string, ctx *Context) (string, error) {
	var firstErr error
	result := interpolatePattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := interpolatePattern.FindStringSubmatch(match)
		value, err := e.EvaluateString(groups[1], ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

func unwrap(expression string) string {
	expr := strings.TrimSpace(expression)
	if strings.HasPrefix(expr, "${{") && strings.HasSuffix(expr, "}}") {
		expr = strings.TrimSpace(expr[3 : len(expr)-2])
	}
	return expr
}

func evalBool(n node, ctx *Context) bool {
	switch n := n.(type) {
	case boolNode:
		return n.value
	case orNode:
		return evalBool(n.left, ctx) || evalBool(n.right, ctx)
	case andNode:
		return evalBool(n.left, ctx) && evalBool(n.right, ctx)
	case notNode:
		return !evalBool(n.expr, ctx)
	case compareNode:
		return evalCompare(n, ctx)
	case callNode:
		return evalCall(n, ctx)
	case valueNode:
		if n.quoted {
			return false
		}
		if v, ok := ctx.Resolve(n.raw); ok {
			return truthy(v)
		}
		// Unknown bare word: undefined, hence falsy.
		return false
	}
	return false
}

func evalCompare(n compareNode, ctx *Context) bool {
	left := operand(n.left, ctx)
	right := operand(n.right, ctx)

	switch n.op {
	case tokenEq:
		return left == right
	case tokenNeq:
		return left != right
	}

	ln, lerr := strconv.ParseFloat(left, 64)
	rn, rerr := strconv.ParseFloat(right, 64)
	if lerr == nil && rerr == nil {
		switch n.op {
		case tokenLt:
			return ln < rn
		case tokenGt:
			return ln > rn
		case tokenLte:
			return ln <= rn
		case tokenGte:
			return ln >= rn
		}
		return false
	}

	switch n.op {
	case tokenLt:
		return left < right
	case tokenGt:
		return left > right
	case tokenLte:
		return left <= right
	case tokenGte:
		return left >= right
	}
	return false
}

// operand resolves a comparison operand to a string. A bare word that does
// not resolve as a variable is taken as a literal, so `jobs.a.status ==
// completed` works with or without quotes. Nested boolean expressions
// stringify to "true"/"false".
func operand(n node, ctx *Context) string {
	switch n := n.(type) {
	case valueNode:
		if n.quoted {
			return n.raw
		}
		if v, ok := ctx.Resolve(n.raw); ok {
			return v
		}
		return n.raw
	case boolNode:
		if n.value {
			return "true"
		}
		return "false"
	default:
		if evalBool(n, ctx) {
			return "true"
		}
		return "false"
	}
}

func evalCall(n callNode, ctx *Context) bool {
	switch n.name {
	case "success":
		for _, s := range ctx.Statuses() {
			if s != core.JobCompleted && s != core.JobSkipped {
				return false
			}
		}
		return true
	case "failure":
		for _, s := range ctx.Statuses() {
			if s == core.JobFailed {
				return true
			}
		}
		return false
	case "always":
		return true
	case "cancelled":
		for _, s := range ctx.Statuses() {
			if s == core.JobCancelled {
				return true
			}
		}
		return false
	}
	// Unknown functions are undefined values, hence falsy.
	return false
}

// truthy implements the expression language's string truthiness: empty,
// "false", "0", "null" and "none" are false regardless of case.
func truthy(value string) bool {
	switch strings.ToLower(value) {
	case "", "false", "0", "null", "none":
		return false
	}
	return true
}
