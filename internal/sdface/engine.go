// Package sdface is the interactive control surface (spec §6.2): the
// opaque-handle facade the C-ABI would wrap. It owns a registry of opened
// projects, their compiled artifacts, and the Sims created against them,
// addressed by uuid.UUID instead of an opaque C pointer. Patch application
// is atomic (spec §7: "either every op succeeds and the datamodel is
// replaced, or none take effect"), implemented by mutating a deep copy and
// only swapping it in when the recompile introduces no new errors (or the
// patch sets AllowErrors).
//
// The shape is grounded on the teacher's internal/vm/module_loader.go
// mutex-guarded registry pattern, generalized from "one cache of loaded
// modules" to "one registry per handle kind."
package sdface

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"sdengine/internal/sdcompile"
	"sdengine/internal/sddata"
	"sdengine/internal/sdlerrors"
	"sdengine/internal/sdlog"
	"sdengine/internal/sdsim"
)

type projectEntry struct {
	mu       sync.Mutex
	project  *sddata.Project
	compiled *sdcompile.CompiledProject
	errs     []*sdlerrors.EngineError
}

type modelEntry struct {
	projectID uuid.UUID
	model     *sdcompile.CompiledModel
}

// Engine is the process-wide registry of opened projects, model handles,
// and live Sims. All methods are safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*projectEntry
	models   map[uuid.UUID]*modelEntry
	sims     map[uuid.UUID]*sdsim.Sim
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{
		projects: map[uuid.UUID]*projectEntry{},
		models:   map[uuid.UUID]*modelEntry{},
		sims:     map[uuid.UUID]*sdsim.Sim{},
	}
}

// OpenProject decodes data as the given sddata.Format and registers it,
// compiling it immediately so Errors/GetModel are available without a
// separate call. A failed compile still opens the project (its errors are
// retrievable via Errors); only a decode failure is a hard error.
func (e *Engine) OpenProject(data []byte, format sddata.Format) (uuid.UUID, error) {
	project, err := sddata.Open(format, data)
	if err != nil {
		return uuid.Nil, err
	}
	entry := &projectEntry{project: project}
	entry.compiled, entry.errs = compileErrs(project)

	id := uuid.New()
	e.mu.Lock()
	e.projects[id] = entry
	e.mu.Unlock()
	return id, nil
}

// Serialize re-encodes the project's current datamodel.
func (e *Engine) Serialize(projectID uuid.UUID, format sddata.Format) ([]byte, error) {
	entry, err := e.project(projectID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return sddata.Save(format, entry.project)
}

// PatchOp is one mutation within a Patch. Fields are interpreted per Op;
// unused fields for a given Op are ignored. Variable carries a full
// sddata.Variable literal (spec §1: surface-syntax/equation-text parsing is
// out of scope, so patches carry already-lowered-to-AST variable bodies,
// the same shape Project.Models[i].Variables holds).
type PatchOp struct {
	Op       string          `json:"op"`
	Variable *sddata.Variable `json:"variable,omitempty"`
	Ident    string          `json:"ident,omitempty"`
	NewIdent string          `json:"newIdent,omitempty"`
	View     json.RawMessage `json:"view,omitempty"`
	SimSpecs *sddata.SimSpecs `json:"simSpecs,omitempty"`
}

// ModelPatch is the set of ops to apply against one named model.
type ModelPatch struct {
	Name string    `json:"name"`
	Ops  []PatchOp `json:"ops"`
}

// Patch is the atomic mutation request (spec §6.2).
type Patch struct {
	ProjectOps   []PatchOp    `json:"projectOps,omitempty"`
	Models       []ModelPatch `json:"models,omitempty"`
	DryRun       bool         `json:"dryRun,omitempty"`
	AllowErrors  bool         `json:"allowErrors,omitempty"`
}

// ApplyPatch applies patch to projectID atomically: it mutates a deep copy,
// recompiles the copy, and only swaps it in if the result introduces no
// errors beyond those the project already had (or AllowErrors is set) and
// DryRun is false. On any rejection the project is left exactly as it was.
func (e *Engine) ApplyPatch(projectID uuid.UUID, patch Patch) error {
	entry, err := e.project(projectID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	working, err := cloneProject(entry.project)
	if err != nil {
		return sdlerrors.Generic("cloning project for patch: %v", err)
	}

	for _, op := range patch.ProjectOps {
		if err := applyProjectOp(working, op); err != nil {
			return err
		}
	}
	for _, mp := range patch.Models {
		model := working.ModelByName(mp.Name)
		if model == nil {
			model = &sddata.Model{Name: mp.Name}
			working.Models = append(working.Models, *model)
			model = working.ModelByName(mp.Name)
		}
		for _, op := range mp.Ops {
			if err := applyModelOp(model, op); err != nil {
				return err
			}
		}
	}

	compiled, errs := compileErrs(working)
	preExisting := errorSet(entry.errs)
	newErrs := newErrorsOnly(errs, preExisting)
	if len(newErrs) > 0 && !patch.AllowErrors {
		sdlog.Warn("patch rejected: %d new error(s), first: %v", len(newErrs), newErrs[0])
		return newErrs[0]
	}
	if patch.DryRun {
		return nil
	}

	entry.project = working
	entry.compiled = compiled
	entry.errs = errs
	return nil
}

// Errors returns the most recent compile's errors for projectID.
func (e *Engine) Errors(projectID uuid.UUID) ([]*sdlerrors.EngineError, error) {
	entry, err := e.project(projectID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.errs, nil
}

// GetModel resolves a model handle within projectID by name. The project
// must have compiled cleanly enough to produce that model (partial
// compiles still register any model that itself compiled without error).
func (e *Engine) GetModel(projectID uuid.UUID, modelName string) (uuid.UUID, error) {
	entry, err := e.project(projectID)
	if err != nil {
		return uuid.Nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.compiled == nil {
		return uuid.Nil, sdlerrors.Model(sdlerrors.CodeNotSimulatable, "project has no compiled artifact")
	}
	cm := entry.compiled.ModelByName(modelName)
	if cm == nil {
		return uuid.Nil, sdlerrors.Model(sdlerrors.CodeDoesNotExist, "model %q not compiled", modelName)
	}
	id := uuid.New()
	e.mu.Lock()
	e.models[id] = &modelEntry{projectID: projectID, model: cm}
	e.mu.Unlock()
	return id, nil
}

// NewSim creates a fresh Sim against modelHandle and registers it.
func (e *Engine) NewSim(modelHandle uuid.UUID, enableLTM bool) (uuid.UUID, error) {
	e.mu.Lock()
	me, ok := e.models[modelHandle]
	e.mu.Unlock()
	if !ok {
		return uuid.Nil, sdlerrors.Model(sdlerrors.CodeDoesNotExist, "unknown model handle")
	}
	entry, err := e.project(me.projectID)
	if err != nil {
		return uuid.Nil, err
	}
	entry.mu.Lock()
	project := entry.compiled
	entry.mu.Unlock()

	sim := sdsim.New(project, me.model, enableLTM)
	id := uuid.New()
	e.mu.Lock()
	e.sims[id] = sim
	e.mu.Unlock()
	return id, nil
}

// Sim looks up a registered Sim by handle.
func (e *Engine) Sim(simHandle uuid.UUID) (*sdsim.Sim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sim, ok := e.sims[simHandle]
	if !ok {
		return nil, sdlerrors.Model(sdlerrors.CodeDoesNotExist, "unknown sim handle")
	}
	return sim, nil
}

func (e *Engine) project(projectID uuid.UUID) (*projectEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.projects[projectID]
	if !ok {
		return nil, sdlerrors.Model(sdlerrors.CodeDoesNotExist, "unknown project handle")
	}
	return entry, nil
}

func compileErrs(project *sddata.Project) (*sdcompile.CompiledProject, []*sdlerrors.EngineError) {
	cp, errs := sdcompile.Compile(project)
	out := make([]*sdlerrors.EngineError, 0, len(errs))
	for _, err := range errs {
		if ee, ok := err.(*sdlerrors.EngineError); ok {
			out = append(out, ee)
		} else {
			out = append(out, sdlerrors.Generic("%v", err))
		}
	}
	return cp, out
}

func errorSet(errs []*sdlerrors.EngineError) map[string]bool {
	set := make(map[string]bool, len(errs))
	for _, e := range errs {
		set[e.Error()] = true
	}
	return set
}

func newErrorsOnly(errs []*sdlerrors.EngineError, preExisting map[string]bool) []*sdlerrors.EngineError {
	var out []*sdlerrors.EngineError
	for _, e := range errs {
		if !preExisting[e.Error()] {
			out = append(out, e)
		}
	}
	return out
}

func cloneProject(p *sddata.Project) (*sddata.Project, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var clone sddata.Project
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

func applyProjectOp(p *sddata.Project, op PatchOp) error {
	switch op.Op {
	case "setSimSpecs":
		if op.SimSpecs == nil {
			return sdlerrors.Generic("setSimSpecs op missing simSpecs")
		}
		p.SimSpecs = *op.SimSpecs
		return nil
	default:
		return sdlerrors.Generic("unsupported project-level op %q", op.Op)
	}
}

func applyModelOp(m *sddata.Model, op PatchOp) error {
	switch op.Op {
	case "upsertStock", "upsertFlow", "upsertAux", "upsertModule":
		if op.Variable == nil {
			return sdlerrors.Generic("%s missing variable body", op.Op)
		}
		upsertVariable(m, *op.Variable)
		return nil
	case "deleteVariable":
		deleteVariable(m, op.Ident)
		return nil
	case "renameVariable":
		renameVariable(m, op.Ident, op.NewIdent)
		return nil
	case "setSimSpecs":
		if op.SimSpecs == nil {
			return sdlerrors.Generic("setSimSpecs op missing simSpecs")
		}
		specs := *op.SimSpecs
		m.SimSpecs = &specs
		return nil
	case "upsertView", "deleteView":
		// Display/layout views carry no compile-time semantics; the patch is
		// accepted but has no effect on the datamodel the compiler consumes.
		return nil
	default:
		return sdlerrors.Generic("unsupported model-level op %q", op.Op)
	}
}

func upsertVariable(m *sddata.Model, v sddata.Variable) {
	for i := range m.Variables {
		if m.Variables[i].Ident == v.Ident {
			m.Variables[i] = v
			return
		}
	}
	m.Variables = append(m.Variables, v)
}

func deleteVariable(m *sddata.Model, ident string) {
	out := m.Variables[:0]
	for _, v := range m.Variables {
		if v.Ident != ident {
			out = append(out, v)
		}
	}
	m.Variables = out
}

func renameVariable(m *sddata.Model, from, to string) {
	for i := range m.Variables {
		if m.Variables[i].Ident == from {
			m.Variables[i].Ident = to
		}
		for j, in := range m.Variables[i].Inflows {
			if in == from {
				m.Variables[i].Inflows[j] = to
			}
		}
		for j, out := range m.Variables[i].Outflows {
			if out == from {
				m.Variables[i].Outflows[j] = to
			}
		}
	}
}
