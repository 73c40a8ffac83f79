package sdcompile

import "sdengine/internal/sddata"

// InitialVariableSet computes the set of idents that run_initials applies
// overrides to (spec §4.7: "Applies every override whose variable is in
// runlist_initials"). simlin's compiler.rs computes a narrower "is_initial"
// set by closing over each stock's init_ast dependencies, but spec.md's own
// override-survives-reset scenario (§8 scenario 6) overrides a pure aux that
// only feeds a flow, never a stock's init expression — so the operational
// definition actually in force is runlist membership, not the dependency
// closure. Module variables are excluded: their value comes from a submodel
// invocation, not a run_initials assignment.
func (cm *CompiledModel) InitialVariableSet() map[string]bool {
	set := make(map[string]bool, len(cm.Runlists.Initials)+len(cm.Runlists.Stocks))
	for _, ident := range cm.Runlists.Stocks {
		if cm.VarKinds[ident] == sddata.KindModule {
			continue
		}
		set[ident] = true
	}
	for _, ident := range cm.Runlists.Initials {
		if cm.VarKinds[ident] == sddata.KindModule {
			continue
		}
		set[ident] = true
	}
	return set
}

// IsInitialVariable reports whether ident is eligible for set_override /
// set_override_by_offset.
func (cm *CompiledModel) IsInitialVariable(ident string) bool {
	if cm.VarKinds[ident] == sddata.KindModule {
		return false
	}
	for _, s := range cm.Runlists.Stocks {
		if s == ident {
			return true
		}
	}
	for _, s := range cm.Runlists.Initials {
		if s == ident {
			return true
		}
	}
	return false
}
