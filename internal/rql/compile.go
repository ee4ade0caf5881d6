package rql

import (
	"reportql/internal/domain"
	"reportql/internal/expr"
	"reportql/internal/macro"
	"reportql/internal/schema"
)

// Compiler turns query text plus macro bindings into a QueryPlan. It is
// stateless beyond its collaborators and safe for concurrent use; a plan is
// compiled once per (text, bindings) pair and shared read-only afterwards.
type Compiler struct {
	Registry *schema.Registry
	Macros   *macro.Engine
	Expr     *expr.Evaluator
}

// NewCompiler builds a Compiler with default macro and expression engines.
func NewCompiler(reg *schema.Registry) *Compiler {
	return &Compiler{
		Registry: reg,
		Macros:   macro.New(),
		Expr:     expr.NewEvaluator(),
	}
}

// Compile runs the full pipeline: macro substitution, expression
// evaluation, cleanup, parsing, and type resolution. Macro substitution
// always precedes expression evaluation; any placeholder left unresolved
// after substitution aborts compilation.
func (c *Compiler) Compile(text string, params map[string]string) (*domain.QueryPlan, error) {
	substituted, unresolved := c.Macros.Substitute(text, params)
	if len(unresolved) > 0 {
		return nil, domain.ErrUnresolvedMacros(unresolved...)
	}

	resolved, err := c.Expr.ExpandExpressions(substituted, c.Macros.Resolve(params))
	if err != nil {
		return nil, err
	}

	parsed, err := Parse(Clean(resolved))
	if err != nil {
		return nil, err
	}
	return Resolve(parsed, c.Registry, c.Expr)
}
