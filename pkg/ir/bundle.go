package ir

import "sort"

// Bundle is the sealed output of translation: every callable the planner must
// build, in dependency order, plus the compilation entry point.
type Bundle struct {
	Primary      Callable
	Callables    map[string]Callable
	Dependencies []string // topologically sorted callable names
	TypeAliases  map[string]TSchema
}

// NewBundle assembles a bundle and computes the dependency order by post-order
// traversal from the primary callable: each callable appears exactly once,
// after all of its transitive callees. Reports UnsupportedConstruct on cycles
// and Internal when the primary is missing from the callables map.
func NewBundle(primary Callable, callables map[string]Callable, aliases map[string]TSchema) (*Bundle, error) {
	if primary != nil {
		if _, ok := callables[primary.CallableName()]; !ok {
			return nil, Errorf(Internal, "primary callable %q is not in the callables map", primary.CallableName())
		}
	}

	order, err := dependencyOrder(primary, callables)
	if err != nil {
		return nil, err
	}
	if aliases == nil {
		aliases = map[string]TSchema{}
	}
	return &Bundle{
		Primary:      primary,
		Callables:    callables,
		Dependencies: order,
		TypeAliases:  aliases,
	}, nil
}

func dependencyOrder(primary Callable, callables map[string]Callable) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(callables))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return Errorf(UnsupportedConstruct, "cyclic dependency through %q", name)
		}
		c, ok := callables[name]
		if !ok {
			return Errorf(Internal, "callable %q referenced but not translated", name)
		}
		state[name] = visiting
		for _, callee := range c.Callees() {
			if err := visit(callee); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	if primary != nil {
		if err := visit(primary.CallableName()); err != nil {
			return nil, err
		}
	}
	// Callables unreachable from the primary (stand-alone tasks compiled in
	// the same pass) still need an order slot.
	for _, name := range sortedNames(callables) {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func sortedNames(callables map[string]Callable) []string {
	names := make([]string, 0, len(callables))
	for name := range callables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
