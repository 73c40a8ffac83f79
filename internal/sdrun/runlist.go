package sdrun

import (
	"golang.org/x/exp/slices"

	"sdengine/internal/sddata"
	"sdengine/internal/sdident"
	"sdengine/internal/sdlerrors"
)

// Runlists holds the three topologically ordered variable lists (spec §4.2).
type Runlists struct {
	Initials []string
	Flows    []string
	Stocks   []string
}

// Build computes the runlists for a single model's variable set. Every
// ident is the variable's canonical form (spec §4.1); dependency edges
// outside this model's variable set (module input sources living in the
// parent model) are the caller's responsibility to pre-resolve before
// calling Build — a Module variable's dependency edges, in both graphs, are
// its bound input sources, which must themselves be members of vars.
func Build(vars []sddata.Variable) (Runlists, error) {
	initNodes := make([]Node, 0, len(vars))
	flowNodes := make([]Node, 0, len(vars))
	var stocks []string

	for _, v := range vars {
		ident := string(sdident.Ident(v.Ident))
		switch v.Kind {
		case sddata.KindStock:
			stocks = append(stocks, ident)
			initNodes = append(initNodes, Node{Ident: ident, Deps: ExtractDeps(v.Init)})
			// Stocks are leaves in the flows graph: they contribute no
			// dependency edges of their own, but flow/aux nodes below may
			// still depend *on* them (spec §9).
			flowNodes = append(flowNodes, Node{Ident: ident})
		case sddata.KindModule:
			deps := moduleDeps(v)
			initNodes = append(initNodes, Node{Ident: ident, Deps: deps})
			flowNodes = append(flowNodes, Node{Ident: ident, Deps: deps})
		default: // Flow, Aux
			eq := v.Equation
			initEq := v.InitEq
			if initEq == nil {
				initEq = eq
			}
			initNodes = append(initNodes, Node{Ident: ident, Deps: ExtractDeps(initEq)})
			flowNodes = append(flowNodes, Node{Ident: ident, Deps: ExtractDeps(eq)})
		}
	}

	initOrder, err := TopoSort(initNodes)
	if err != nil {
		return Runlists{}, err
	}

	// The flows graph must be acyclic when restricted to non-stock edges;
	// stock nodes carry no outgoing deps above, so any cycle TopoSort finds
	// here is necessarily a non-stock cycle.
	flowOrderAll, err := TopoSort(flowNodes)
	if err != nil {
		return Runlists{}, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeNotSimulatable,
			"non-stock dependency cycle: %v", err)
	}

	isStock := make(map[string]bool, len(stocks))
	for _, s := range stocks {
		isStock[s] = true
	}
	flowOrder := make([]string, 0, len(flowOrderAll))
	for _, ident := range flowOrderAll {
		if !isStock[ident] {
			flowOrder = append(flowOrder, ident)
		}
	}

	sortedStocks := append([]string(nil), stocks...)
	slices.Sort(sortedStocks)

	return Runlists{Initials: initOrder, Flows: flowOrder, Stocks: sortedStocks}, nil
}

func moduleDeps(v sddata.Variable) []string {
	seen := map[string]bool{}
	var out []string
	for _, in := range v.Inputs {
		ident := string(sdident.Ident(in.Src))
		if !seen[ident] {
			seen[ident] = true
			out = append(out, ident)
		}
	}
	return out
}
