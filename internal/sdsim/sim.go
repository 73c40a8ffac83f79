// Package sdsim is the simulation driver (spec §4.7): it owns a model
// instance's slab, steps it forward with Euler or RK4 integration, and
// answers the interactive query surface (get_value/set_value/overrides).
// The phase-gated state machine and the single-threaded step loop are
// grounded on the teacher's internal/vm/vm.go execution-loop shape; module
// dispatch borrows module_loader.go's cache-with-mutex pattern.
package sdsim

import (
	"math"
	"strings"
	"sync"

	"sdengine/internal/sdbc"
	"sdengine/internal/sdcompile"
	"sdengine/internal/sddata"
	"sdengine/internal/sdident"
	"sdengine/internal/sdlerrors"
	"sdengine/internal/sdoffset"
	"sdengine/internal/sdresults"
	"sdengine/internal/sdvm"
)

// Phase is the Sim lifecycle (spec §4.7).
type Phase int

const (
	Fresh Phase = iota
	Initialized
	Running
	Completed
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "Fresh"
	case Initialized:
		return "Initialized"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	}
	return "Unknown"
}

// Sim runs one CompiledModel to completion. It is single-threaded: all
// methods assume the caller serializes access (spec §5 "each Sim is
// single-threaded"). Multiple Sims may share the parent CompiledProject
// read-only and run concurrently in separate goroutines.
type Sim struct {
	project *sdcompile.CompiledProject
	model   *sdcompile.CompiledModel

	phase   Phase
	slabLen int // one model instance's slab size (globals + variables)

	row      []float64 // the working current-step row, length slabLen
	stepTime float64   // curr row's time, tracked outside the slab for save-boundary arithmetic

	results *sdresults.Results

	overrides map[sdident.Canonical]float64

	cancel bool

	childrenMu sync.Mutex
	children   map[string]*Sim // module ident -> nested Sim, lazily constructed
}

// New allocates a fresh Sim over model within project. enableLTM is accepted
// for interface parity with the spec's new(model, enable_ltm) signature;
// Loops That Matter scoring is out of scope (spec Non-goals) so it is
// otherwise unused.
func New(project *sdcompile.CompiledProject, model *sdcompile.CompiledModel, enableLTM bool) *Sim {
	s := &Sim{
		project:   project,
		model:     model,
		phase:     Fresh,
		slabLen:   model.Offsets.TotalSize(),
		overrides: map[sdident.Canonical]float64{},
		children:  map[string]*Sim{},
	}
	s.allocRow()
	return s
}

func (s *Sim) allocRow() {
	s.row = make([]float64, s.slabLen)
	names := map[int]string{}
	for _, ident := range s.model.Offsets.Order() {
		e, _ := s.model.Offsets.Get(ident)
		for k := 0; k < e.Size; k++ {
			names[e.Offset+k] = string(ident)
			if e.Size > 1 {
				names[e.Offset+k] = string(ident) + "#" + itoa(k)
			}
		}
	}
	s.results = sdresults.New(names)
}

// SetOverride records ident -> v in the override table. Only initial
// variables (everything run_initials assigns a value to: stocks, flows, and
// auxes) may be overridden; module variables fail BadOverride. The override
// table is agnostic of phase — it takes effect at the next run_initials.
func (s *Sim) SetOverride(ident string, v float64) error {
	canon := sdident.Ident(ident)
	if _, ok := s.model.Offsets.Get(canon); !ok {
		return sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "unknown variable %q", ident)
	}
	if !s.isInitialVariable(canon) {
		return sdlerrors.Variable(sdlerrors.CodeBadOverride, "%q is not an initial variable", ident)
	}
	s.overrides[canon] = v
	return nil
}

// SetOverrideByOffset validates off addresses an initial variable's slab
// slot even when the caller holds no Sim — useful for the interactive
// surface replaying a patch against a CompiledModel before a Sim exists.
func SetOverrideByOffset(model *sdcompile.CompiledModel, off int) error {
	for _, ident := range model.Offsets.Order() {
		e, _ := model.Offsets.Get(ident)
		if off < e.Offset || off >= e.Offset+e.Size {
			continue
		}
		if isInitialVariableIn(model, ident) {
			return nil
		}
		return sdlerrors.Variable(sdlerrors.CodeBadOverride, "offset %d is not an initial variable", off)
	}
	return sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "offset %d does not address a variable", off)
}

// ClearOverrides empties the override table.
func (s *Sim) ClearOverrides() { s.overrides = map[sdident.Canonical]float64{} }

// isInitialVariable delegates to isInitialVariableIn for this Sim's model.
func (s *Sim) isInitialVariable(ident sdident.Canonical) bool {
	return isInitialVariableIn(s.model, ident)
}

// isInitialVariableIn reports whether ident participates in the initials
// pass: every stock, flow, and aux is assigned a value by run_initials
// (spec §4.2), so all of those are overridable; module variables derive
// their value from a submodel invocation and are not (spec §4.7). Delegates
// to CompiledModel.IsInitialVariable so sdcompile remains the single source
// of truth for override eligibility.
func isInitialVariableIn(model *sdcompile.CompiledModel, ident sdident.Canonical) bool {
	return model.IsInitialVariable(string(ident))
}

// RunInitials seeds the four globals, runs runlist_initials (applying the
// override table to their results), and transitions Fresh/post-reset ->
// Initialized (spec §4.7).
func (s *Sim) RunInitials() error {
	if s.phase != Fresh {
		return sdlerrors.Model(sdlerrors.CodeNotSimulatable, "run_initials called in phase %s", s.phase)
	}
	specs := s.model.SimSpecs
	s.row[sdoffset.Time] = specs.Start
	s.row[sdoffset.Dt] = specs.Dt.Resolve()
	s.row[sdoffset.InitialTime] = specs.Start
	s.row[sdoffset.FinalTime] = specs.Stop
	s.stepTime = specs.Start

	for _, ident := range s.model.Runlists.Initials {
		if err := s.runProgram(ident + ".init"); err != nil {
			return err
		}
	}
	s.applyOverrides(s.row)
	s.phase = Initialized
	s.results.Record(s.stepTime, s.row)
	return nil
}

// applyOverrides re-pokes every entry of the override table into row. An
// override on a flow or aux ident would otherwise only take effect for one
// instant: the very next runlist_flows pass recomputes that ident from its
// own equation and discards it, so every site that re-runs the flows list
// must call this afterward (spec §4.7). Within a pass, runProgram and evalK
// call pokeOverride as each ident's program finishes, so programs later in
// the same pass read the override.
func (s *Sim) applyOverrides(row []float64) {
	for ident, v := range s.overrides {
		entry, ok := s.model.Offsets.Get(ident)
		if !ok {
			continue
		}
		row[entry.Offset] = v
	}
}

// runProgram executes the named Program (if it exists) against the current
// row, writing its AssignCurr results in place.
func (s *Sim) runProgram(ident string) error {
	prog, ok := s.model.Module.Programs[ident]
	if !ok {
		return nil // table-only var with no equation, or a module's bare init reuse
	}
	frame := &sdvm.Frame{Curr: s.row, Temps: map[int][]float64{}}
	_, err := sdvm.Run(prog, s.model.Module, frame, s.evalModule)
	s.pokeOverride(s.row, sdident.Canonical(strings.TrimSuffix(ident, ".init")))
	return err
}

// pokeOverride writes ident's override, if it has one, into row.
func (s *Sim) pokeOverride(row []float64, ident sdident.Canonical) {
	if v, ok := s.overrides[ident]; ok {
		if entry, ok := s.model.Offsets.Get(ident); ok {
			row[entry.Offset] = v
		}
	}
}

// netValue evaluates a stock element's net-flow-rate Program against row
// without mutating it.
func (s *Sim) netValue(key string, row []float64) (float64, error) {
	prog, ok := s.model.Module.Programs[key+".net"]
	if !ok {
		return 0, nil
	}
	frame := &sdvm.Frame{Curr: row, Temps: map[int][]float64{}}
	return sdvm.Run(prog, s.model.Module, frame, s.evalModule)
}

// RunTo advances the simulation through save-step boundaries up to t (spec
// §4.7). A call with t <= the current time is a no-op (spec §9).
func (s *Sim) RunTo(t float64) error {
	if s.phase != Initialized && s.phase != Running {
		return sdlerrors.Model(sdlerrors.CodeNotSimulatable, "run_to called in phase %s", s.phase)
	}
	specs := s.model.SimSpecs
	dt := specs.Dt.Resolve()
	if dt <= 0 {
		return sdlerrors.Model(sdlerrors.CodeGeneric, "run_to: dt must be positive")
	}
	saveStep := specs.EffectiveSaveStep()
	const eps = 1e-9

	for s.stepTime+dt <= t+eps {
		if s.cancel {
			break
		}
		if err := s.step(dt); err != nil {
			return err
		}
		s.stepTime += dt
		s.row[sdoffset.Time] = s.stepTime

		if s.isSaveBoundary(s.stepTime, specs.Start, saveStep, eps) {
			s.results.Record(s.stepTime, s.row)
		}
	}
	s.phase = Running
	return nil
}

func (s *Sim) isSaveBoundary(t, start, saveStep, eps float64) bool {
	if saveStep <= 0 {
		return true
	}
	n := (t - start) / saveStep
	return math.Abs(n-math.Round(n)) < eps
}

// RunToEnd runs to FINAL_TIME and transitions to Completed (spec §4.7).
func (s *Sim) RunToEnd() error {
	if err := s.RunTo(s.model.SimSpecs.Stop); err != nil {
		return err
	}
	s.phase = Completed
	return nil
}

// step advances the working row by one dt using the configured integrator.
func (s *Sim) step(dt float64) error {
	if s.model.SimSpecs.Method == sddata.MethodRK4 {
		return s.stepRK4(dt)
	}
	return s.stepEuler(dt)
}

// stepEuler runs runlist_flows against the current row, then writes
// next[off+k] = curr[off+k] + dt*net for every stock element in place (spec
// §4.9), clamping non_negative stocks to zero.
func (s *Sim) stepEuler(dt float64) error {
	for _, ident := range s.model.Runlists.Flows {
		if err := s.runProgram(ident); err != nil {
			return err
		}
	}
	s.applyOverrides(s.row)
	updates, err := s.stockDeltas(s.row, dt)
	if err != nil {
		return err
	}
	s.applyStockUpdates(updates)
	return nil
}

// stepRK4 evaluates k1..k4 of the flows at intermediate times against
// scratch rows without persisting intermediate stock values (spec §4.7),
// then commits the weighted average and refreshes flows/auxes at the final
// state.
func (s *Sim) stepRK4(dt float64) error {
	t0 := s.stepTime
	y0 := s.stockSnapshot(s.row)

	k1, err := s.evalK(s.row, t0, y0)
	if err != nil {
		return err
	}
	rowB := s.perturbed(y0, k1, dt/2, t0+dt/2)
	k2, err := s.evalK(rowB, t0+dt/2, s.stockSnapshot(rowB))
	if err != nil {
		return err
	}
	rowC := s.perturbed(y0, k2, dt/2, t0+dt/2)
	k3, err := s.evalK(rowC, t0+dt/2, s.stockSnapshot(rowC))
	if err != nil {
		return err
	}
	rowD := s.perturbed(y0, k3, dt, t0+dt)
	k4, err := s.evalK(rowD, t0+dt, s.stockSnapshot(rowD))
	if err != nil {
		return err
	}

	final := make(map[string]float64, len(y0))
	for key, y := range y0 {
		final[key] = y + (dt/6)*(k1[key]+2*k2[key]+2*k3[key]+k4[key])
	}
	s.applyStockUpdates(final)
	// Refresh flows/auxes so this step's row reflects the committed stocks.
	for _, ident := range s.model.Runlists.Flows {
		if err := s.runProgram(ident); err != nil {
			return err
		}
	}
	s.applyOverrides(s.row)
	return nil
}

// evalK runs runlist_flows against a scratch row already seeded with y and
// time t, then evaluates each stock element's net-flow rate.
func (s *Sim) evalK(row []float64, t float64, y map[string]float64) (map[string]float64, error) {
	row[sdoffset.Time] = t
	for _, ident := range s.model.Runlists.Flows {
		prog, ok := s.model.Module.Programs[ident]
		if !ok {
			continue
		}
		frame := &sdvm.Frame{Curr: row, Temps: map[int][]float64{}}
		if _, err := sdvm.Run(prog, s.model.Module, frame, s.evalModule); err != nil {
			return nil, err
		}
		s.pokeOverride(row, sdident.Canonical(ident))
	}
	s.applyOverrides(row)
	return s.netRates(row)
}

// netRates evaluates every stock element's net-flow rate against row.
func (s *Sim) netRates(row []float64) (map[string]float64, error) {
	out := map[string]float64{}
	for _, ident := range s.model.Runlists.Stocks {
		n := s.model.StockElems[ident]
		if n == 0 {
			n = 1
		}
		for k := 0; k < n; k++ {
			key := elemKey(ident, n, k)
			net, err := s.netValue(key, row)
			if err != nil {
				return nil, err
			}
			out[key] = net
		}
	}
	return out, nil
}

// stockDeltas returns, per stock element key, curr[off+k] + dt*net — the
// Euler-updated next value.
func (s *Sim) stockDeltas(row []float64, dt float64) (map[string]float64, error) {
	rates, err := s.netRates(row)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rates))
	for _, ident := range s.model.Runlists.Stocks {
		entry, ok := s.model.Offsets.Get(sdident.Canonical(ident))
		if !ok {
			continue
		}
		n := s.model.StockElems[ident]
		if n == 0 {
			n = 1
		}
		for k := 0; k < n; k++ {
			key := elemKey(ident, n, k)
			out[key] = row[entry.Offset+k] + dt*rates[key]
		}
	}
	return out, nil
}

// stockSnapshot reads the current value of every stock element keyed by its
// elemKey, for RK4's intermediate bookkeeping.
func (s *Sim) stockSnapshot(row []float64) map[string]float64 {
	out := map[string]float64{}
	for _, ident := range s.model.Runlists.Stocks {
		entry, ok := s.model.Offsets.Get(sdident.Canonical(ident))
		if !ok {
			continue
		}
		n := s.model.StockElems[ident]
		if n == 0 {
			n = 1
		}
		for k := 0; k < n; k++ {
			out[elemKey(ident, n, k)] = row[entry.Offset+k]
		}
	}
	return out
}

// perturbed builds a scratch row: a copy of s.row with every stock element
// set to y0[key] + frac*k[key], and Time set to t.
func (s *Sim) perturbed(y0, k map[string]float64, frac, t float64) []float64 {
	row := append([]float64(nil), s.row...)
	row[sdoffset.Time] = t
	for _, ident := range s.model.Runlists.Stocks {
		entry, ok := s.model.Offsets.Get(sdident.Canonical(ident))
		if !ok {
			continue
		}
		n := s.model.StockElems[ident]
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			key := elemKey(ident, n, i)
			row[entry.Offset+i] = y0[key] + frac*k[key]
		}
	}
	return row
}

// applyStockUpdates commits the final per-element stock values into s.row,
// clamping variables declared non_negative.
func (s *Sim) applyStockUpdates(updates map[string]float64) {
	for _, ident := range s.model.Runlists.Stocks {
		entry, ok := s.model.Offsets.Get(sdident.Canonical(ident))
		if !ok {
			continue
		}
		n := s.model.StockElems[ident]
		if n == 0 {
			n = 1
		}
		for k := 0; k < n; k++ {
			key := elemKey(ident, n, k)
			v := updates[key]
			if s.model.NonNegative[ident] && v < 0 {
				v = 0
			}
			s.row[entry.Offset+k] = v
		}
	}
}

// Reset discards the working row and override-free state, preserving the
// override table, and returns to Fresh (spec §4.7).
func (s *Sim) Reset() {
	s.allocRow()
	s.phase = Fresh
	s.stepTime = 0
	s.cancel = false
	s.children = map[string]*Sim{}
}

// Cancel sets the cooperative cancellation flag RunTo polls between steps.
func (s *Sim) Cancel() { s.cancel = true }

// Phase reports the current lifecycle phase.
func (s *Sim) Phase() Phase { return s.phase }

// GetValue returns ident's value at the current step.
func (s *Sim) GetValue(ident string) (float64, error) {
	entry, ok := s.model.Offsets.Get(sdident.Ident(ident))
	if !ok {
		return 0, sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "unknown variable %q", ident)
	}
	return s.row[entry.Offset], nil
}

// SetValue writes v into curr[off]; only legal outside Completed (spec
// §4.7).
func (s *Sim) SetValue(ident string, v float64) error {
	if s.phase == Completed {
		return sdlerrors.Model(sdlerrors.CodeNotSimulatable, "set_value after Completed")
	}
	entry, ok := s.model.Offsets.Get(sdident.Ident(ident))
	if !ok {
		return sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "unknown variable %q", ident)
	}
	s.row[entry.Offset] = v
	return nil
}

// GetSeries returns every saved value of ident up through the current step.
func (s *Sim) GetSeries(ident string) ([]float64, error) {
	entry, ok := s.model.Offsets.Get(sdident.Ident(ident))
	if !ok {
		return nil, sdlerrors.Variable(sdlerrors.CodeUnknownDependency, "unknown variable %q", ident)
	}
	return s.results.Column(entry.Offset), nil
}

// Results exposes the underlying time-series buffer (e.g. for
// sdresults.CorrelateColumns against a baseline run).
func (s *Sim) Results() *sdresults.Results { return s.results }

// evalModule dispatches a module-variable invocation to a lazily created
// nested Sim, driving it through run_initials and to the caller's current
// evaluation time t, then reading the submodel's designated output (spec
// §3.3: "Module variables bind n named inputs ... and read one designated
// output", taken here as the submodel's single stock/flow sharing the
// module's own ident, the convention the SIR/coflow fixtures in
// original_source use). t is the row's own time slot, not s.stepTime: RK4's
// four k-stages evaluate against distinct intermediate times before the
// parent step commits, and each must drive the child to its own time rather
// than all collapsing onto the pre-step value.
func (s *Sim) evalModule(decl sdbc.ModuleDecl, inputs []float64, t float64) (float64, error) {
	child := s.childSim(decl)
	if child == nil {
		return 0, sdlerrors.Model(sdlerrors.CodeUnknownDependency, "module %q: model %q not found", decl.Ident, decl.ModelName)
	}
	if child.phase == Fresh {
		if err := child.RunInitials(); err != nil {
			return 0, err
		}
	}
	for i, v := range inputs {
		if i >= len(decl.Dst) {
			break
		}
		if err := child.SetValue(decl.Dst[i], v); err != nil {
			return 0, err
		}
	}
	if err := child.RunTo(t); err != nil {
		return 0, err
	}
	out, err := child.GetValue(decl.Ident)
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (s *Sim) childSim(decl sdbc.ModuleDecl) *Sim {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()
	if c, ok := s.children[decl.Ident]; ok {
		return c
	}
	cm := s.project.ModelByName(decl.ModelName)
	if cm == nil {
		return nil
	}
	c := New(s.project, cm, false)
	s.children[decl.Ident] = c
	return c
}

func elemKey(ident string, n, k int) string {
	if n == 1 {
		return ident
	}
	return ident + "#" + itoa(k)
}

func itoa(k int) string {
	if k == 0 {
		return "0"
	}
	digits := []byte{}
	for k > 0 {
		digits = append([]byte{byte('0' + k%10)}, digits...)
		k /= 10
	}
	return string(digits)
}
