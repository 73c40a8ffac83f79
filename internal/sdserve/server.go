// Package sdserve wraps an sdface.Engine behind a websocket request/response
// loop (SPEC_FULL.md §E): one JSON message in, one JSON message out, per
// connection. The upgrade-then-read-loop shape is grounded on the teacher's
// internal/network/websocket.go WebSocketListen/readMessages pair; unlike
// the teacher's general-purpose message relay, every inbound message here
// is a single {op, args} request answered synchronously with one
// {result, error} reply, since sdface.Engine calls are themselves
// synchronous and no broadcast/fanout concern applies.
package sdserve

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"sdengine/internal/sddata"
	"sdengine/internal/sdface"
)

// Request is one call against the Engine facade.
type Request struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// Response carries either Result or Error, never both.
type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Server upgrades incoming HTTP connections to websockets and answers each
// request frame against a shared Engine.
type Server struct {
	Engine   *sdface.Engine
	Address  string
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	log      *log.Entry
}

// New builds a Server bound to engine; address is host:port for
// http.Server.Addr.
func New(engine *sdface.Engine, address string) *Server {
	return &Server{
		Engine:  engine,
		Address: address,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "sdserve"),
	}
}

// ListenAndServe starts the HTTP server in the background and returns
// immediately; call Shutdown to stop it.
func (s *Server) ListenAndServe() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	s.httpSrv = &http.Server{Addr: s.Address, Handler: mux}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("websocket server stopped")
		}
	}()
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	result, err := s.call(req.Op, req.Args)
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Result: result}
}

// call is the op -> Engine-method table. Every op's args are a JSON object
// with named fields, decoded into the shapes below.
func (s *Server) call(op string, rawArgs json.RawMessage) (interface{}, error) {
	switch op {
	case "openProject":
		var args struct {
			Data   []byte `json:"data"`
			Format string `json:"format"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		id, err := s.Engine.OpenProject(args.Data, sddata.Format(args.Format))
		return handleResult(id, err)

	case "patch":
		var args struct {
			ProjectID uuid.UUID    `json:"projectId"`
			Patch     sdface.Patch `json:"patch"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return nil, s.Engine.ApplyPatch(args.ProjectID, args.Patch)

	case "errors":
		var args struct {
			ProjectID uuid.UUID `json:"projectId"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return s.Engine.Errors(args.ProjectID)

	case "getModel":
		var args struct {
			ProjectID uuid.UUID `json:"projectId"`
			Name      string    `json:"name"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		id, err := s.Engine.GetModel(args.ProjectID, args.Name)
		return handleResult(id, err)

	case "newSim":
		var args struct {
			ModelID   uuid.UUID `json:"modelId"`
			EnableLTM bool      `json:"enableLtm"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		id, err := s.Engine.NewSim(args.ModelID, args.EnableLTM)
		return handleResult(id, err)

	case "runInitials", "runToEnd":
		sim, err := s.simArg(rawArgs)
		if err != nil {
			return nil, err
		}
		if op == "runInitials" {
			return nil, sim.RunInitials()
		}
		return nil, sim.RunToEnd()

	case "runTo":
		var args struct {
			SimID uuid.UUID `json:"simId"`
			Time  float64   `json:"time"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		sim, err := s.Engine.Sim(args.SimID)
		if err != nil {
			return nil, err
		}
		return nil, sim.RunTo(args.Time)

	case "getValue":
		var args struct {
			SimID uuid.UUID `json:"simId"`
			Ident string    `json:"ident"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		sim, err := s.Engine.Sim(args.SimID)
		if err != nil {
			return nil, err
		}
		return sim.GetValue(args.Ident)

	case "setValue":
		var args struct {
			SimID uuid.UUID `json:"simId"`
			Ident string    `json:"ident"`
			Value float64   `json:"value"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		sim, err := s.Engine.Sim(args.SimID)
		if err != nil {
			return nil, err
		}
		return nil, sim.SetValue(args.Ident, args.Value)

	case "getSeries":
		var args struct {
			SimID uuid.UUID `json:"simId"`
			Ident string    `json:"ident"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		sim, err := s.Engine.Sim(args.SimID)
		if err != nil {
			return nil, err
		}
		return sim.GetSeries(args.Ident)

	default:
		return nil, unknownOp(op)
	}
}

func (s *Server) simArg(rawArgs json.RawMessage) (interface {
	RunInitials() error
	RunToEnd() error
}, error) {
	var args struct {
		SimID uuid.UUID `json:"simId"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, err
	}
	return s.Engine.Sim(args.SimID)
}

func handleResult(id uuid.UUID, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return id, nil
}

type unknownOpError string

func (e unknownOpError) Error() string { return "unknown op: " + string(e) }

func unknownOp(op string) error { return unknownOpError(op) }
