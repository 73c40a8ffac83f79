package sdserve

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"sdengine/internal/sdast"
	"sdengine/internal/sddata"
	"sdengine/internal/sdface"
)

func growthProjectJSON(t *testing.T) []byte {
	t.Helper()
	constEq := func(v float64) *sdast.VarEquation {
		return &sdast.VarEquation{Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{Kind: sdast.KindConst, Const: v}}
	}
	project := sddata.Project{
		Name:     "growth",
		SimSpecs: sddata.SimSpecs{Start: 0, Stop: 4, Dt: sddata.Dt{Value: 0.25}, Method: sddata.MethodEuler},
		Models: []sddata.Model{{
			Name: "main",
			Variables: []sddata.Variable{
				{Ident: "population", Kind: sddata.KindStock, Init: constEq(100), Inflows: []string{"births"}},
				{Ident: "births", Kind: sddata.KindFlow, IsFlow: true, Equation: &sdast.VarEquation{
					Shape: sdast.ShapeScalar, Expr: &sdast.Expr2{
						Kind: sdast.KindOp2, Op2: sdast.OpMul,
						Left:  &sdast.Expr2{Kind: sdast.KindVarRef, Ident: "population"},
						Right: &sdast.Expr2{Kind: sdast.KindConst, Const: 0.1},
					},
				}},
			},
		}},
	}
	data, err := json.Marshal(project)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestServerDispatchRunsASim(t *testing.T) {
	srv := New(sdface.New(), "unused:0")

	openResp := srv.dispatch(Request{Op: "openProject", Args: mustJSON(t, map[string]interface{}{
		"data":   growthProjectJSON(t),
		"format": "nativeJSON",
	})})
	if openResp.Error != "" {
		t.Fatal(openResp.Error)
	}
	projectID, ok := openResp.Result.(uuid.UUID)
	if !ok {
		t.Fatalf("openProject result = %#v, want uuid.UUID", openResp.Result)
	}

	modelResp := srv.dispatch(Request{Op: "getModel", Args: mustJSON(t, map[string]interface{}{
		"projectId": projectID,
		"name":      "main",
	})})
	if modelResp.Error != "" {
		t.Fatal(modelResp.Error)
	}

	simResp := srv.dispatch(Request{Op: "newSim", Args: mustJSON(t, map[string]interface{}{
		"modelId": modelResp.Result,
	})})
	if simResp.Error != "" {
		t.Fatal(simResp.Error)
	}

	simArgs := mustJSON(t, map[string]interface{}{"simId": simResp.Result})
	if resp := srv.dispatch(Request{Op: "runInitials", Args: simArgs}); resp.Error != "" {
		t.Fatal(resp.Error)
	}
	getValResp := srv.dispatch(Request{Op: "getValue", Args: mustJSON(t, map[string]interface{}{
		"simId": simResp.Result,
		"ident": "population",
	})})
	if getValResp.Error != "" {
		t.Fatal(getValResp.Error)
	}
	if v, ok := getValResp.Result.(float64); !ok || v != 100 {
		t.Fatalf("population at t=0 = %v, want 100", getValResp.Result)
	}
}

func TestServerDispatchUnknownOp(t *testing.T) {
	srv := New(sdface.New(), "unused:0")
	resp := srv.dispatch(Request{Op: "not_a_real_op"})
	if resp.Error == "" {
		t.Fatal("expected an error for an unknown op")
	}
}
