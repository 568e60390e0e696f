package proptest

import "github.com/seleniaproject/proptest/internal/engine"

// Property1 through Property7 are the fixed arities a property function
// can take (spec §9: "an arity-N property is a sum type over fixed
// arities 1..7, not a variadic call").
type (
	Property1[A any] func(a A) Verdict
	Property2[A, B any] func(a A, b B) Verdict
	Property3[A, B, C any] func(a A, b B, c C) Verdict
	Property4[A, B, C, D any] func(a A, b B, c C, d D) Verdict
	Property5[A, B, C, D, E any] func(a A, b B, c C, d D, e E) Verdict
	Property6[A, B, C, D, E, F any] func(a A, b B, c C, d D, e E, f F) Verdict
	Property7[A, B, C, D, E, F, G any] func(a A, b B, c C, d D, e E, f F, g G) Verdict
)

// Check1 runs prop against values drawn from a single generator.
func Check1[A any](cfg Config, a TypeInfo[A], prop Property1[A]) Result {
	args := []engine.ArgSpec{a.toArgSpec()}

	return check(cfg, args, func(v []any) engine.Verdict {
		return prop(v[0].(A))
	})
}

// Check2 runs prop against values drawn from two generators.
func Check2[A, B any](cfg Config, a TypeInfo[A], b TypeInfo[B], prop Property2[A, B]) Result {
	args := []engine.ArgSpec{a.toArgSpec(), b.toArgSpec()}

	return check(cfg, args, func(v []any) engine.Verdict {
		return prop(v[0].(A), v[1].(B))
	})
}

// Check3 runs prop against values drawn from three generators.
func Check3[A, B, C any](cfg Config, a TypeInfo[A], b TypeInfo[B], c TypeInfo[C], prop Property3[A, B, C]) Result {
	args := []engine.ArgSpec{a.toArgSpec(), b.toArgSpec(), c.toArgSpec()}

	return check(cfg, args, func(v []any) engine.Verdict {
		return prop(v[0].(A), v[1].(B), v[2].(C))
	})
}

// Check4 runs prop against values drawn from four generators.
func Check4[A, B, C, D any](
	cfg Config, a TypeInfo[A], b TypeInfo[B], c TypeInfo[C], d TypeInfo[D], prop Property4[A, B, C, D],
) Result {
	args := []engine.ArgSpec{a.toArgSpec(), b.toArgSpec(), c.toArgSpec(), d.toArgSpec()}

	return check(cfg, args, func(v []any) engine.Verdict {
		return prop(v[0].(A), v[1].(B), v[2].(C), v[3].(D))
	})
}

// Check5 runs prop against values drawn from five generators.
func Check5[A, B, C, D, E any](
	cfg Config, a TypeInfo[A], b TypeInfo[B], c TypeInfo[C], d TypeInfo[D], e TypeInfo[E],
	prop Property5[A, B, C, D, E],
) Result {
	args := []engine.ArgSpec{a.toArgSpec(), b.toArgSpec(), c.toArgSpec(), d.toArgSpec(), e.toArgSpec()}

	return check(cfg, args, func(v []any) engine.Verdict {
		return prop(v[0].(A), v[1].(B), v[2].(C), v[3].(D), v[4].(E))
	})
}

// Check6 runs prop against values drawn from six generators.
func Check6[A, B, C, D, E, F any](
	cfg Config, a TypeInfo[A], b TypeInfo[B], c TypeInfo[C], d TypeInfo[D], e TypeInfo[E], f TypeInfo[F],
	prop Property6[A, B, C, D, E, F],
) Result {
	args := []engine.ArgSpec{
		a.toArgSpec(), b.toArgSpec(), c.toArgSpec(), d.toArgSpec(), e.toArgSpec(), f.toArgSpec(),
	}

	return check(cfg, args, func(v []any) engine.Verdict {
		return prop(v[0].(A), v[1].(B), v[2].(C), v[3].(D), v[4].(E), v[5].(F))
	})
}

// Check7 runs prop against values drawn from seven generators.
func Check7[A, B, C, D, E, F, G any](
	cfg Config, a TypeInfo[A], b TypeInfo[B], c TypeInfo[C], d TypeInfo[D], e TypeInfo[E], f TypeInfo[F],
	g TypeInfo[G], prop Property7[A, B, C, D, E, F, G],
) Result {
	args := []engine.ArgSpec{
		a.toArgSpec(), b.toArgSpec(), c.toArgSpec(), d.toArgSpec(), e.toArgSpec(), f.toArgSpec(), g.toArgSpec(),
	}

	return check(cfg, args, func(v []any) engine.Verdict {
		return prop(v[0].(A), v[1].(B), v[2].(C), v[3].(D), v[4].(E), v[5].(F), v[6].(G))
	})
}
