package host

// OuterLinker records that inner aliases memory owned by outer, so outer
// stays reachable while inner is. Both are script values.
type OuterLinker interface {
	LinkOuter(inner, outer any)
}

// OuterLinkerFunc adapts a function to OuterLinker.
type OuterLinkerFunc func(inner, outer any)

func (f OuterLinkerFunc) LinkOuter(inner, outer any) { f(inner, outer) }
