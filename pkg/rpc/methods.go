package rpc

import (
	"encoding/json"
	"errors"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/fortiblox/intcode/pkg/imagestore"
	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/fortiblox/intcode/pkg/loader"
	"go.uber.org/zap"
)

// Version is reported by getVersion.
const Version = "intcode-1.0.0"

// decodeParams unmarshals named params into v.
func decodeParams(params json.RawMessage, v interface{}) *RPCError {
	if len(params) == 0 {
		return InvalidParamsError("missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return InvalidParamsErrorf("invalid params: %v", err)
	}
	return nil
}

// newMachine builds a session or one-shot machine.
func (s *Server) newMachine(id int, image []int64) *intcode.Machine {
	return intcode.New(id, image, intcode.Opts{
		Logger:    s.log.Named("vm"),
		StepLimit: s.config.StepLimit,
	})
}

// resolveImage loads the program an ImageRef points at.
func (s *Server) resolveImage(ref ImageRef) (*loader.Program, *RPCError) {
	image, inline, err := inlineImage(ref.Image, ref.Data, ref.Encoding)
	if err != nil {
		return nil, InvalidParamsErrorf("invalid image: %v", err)
	}

	selectors := 0
	for _, set := range []bool{inline, ref.Hash != "", ref.Name != ""} {
		if set {
			selectors++
		}
	}
	switch {
	case selectors == 0:
		return nil, InvalidParamsError("one of hash, name, image or data is required")
	case selectors > 1:
		return nil, InvalidParamsError("hash, name and inline image are mutually exclusive")
	case inline:
		return loader.NewProgram("inline", image), nil
	}

	var hash types.ImageHash
	label := ref.Hash
	if ref.Hash != "" {
		hash, err = types.ImageHashFromBase58(ref.Hash)
		if err != nil {
			return nil, InvalidParamsError("invalid image hash")
		}
	} else {
		label = ref.Name
		hash, err = s.store.Resolve(ref.Name)
		if err != nil {
			return nil, storeError(err, label)
		}
	}

	rec, err := s.store.Get(hash)
	if err != nil {
		return nil, storeError(err, label)
	}
	return loader.NewProgram(label, rec.Image), nil
}

func storeError(err error, ref string) *RPCError {
	if errors.Is(err, imagestore.ErrImageNotFound) {
		return ImageNotFoundError(ref)
	}
	return InternalServerErrorf("image store: %v", err)
}

// Image methods

// importImage stores an image under a name.
func (s *Server) importImage(params json.RawMessage) (interface{}, *RPCError) {
	var p ImportImageParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Name == "" {
		return nil, InvalidParamsError("missing name")
	}

	image, ok, err := inlineImage(p.Image, p.Data, p.Encoding)
	if err != nil {
		return nil, InvalidParamsErrorf("invalid image: %v", err)
	}
	if !ok {
		return nil, InvalidParamsError("missing image")
	}

	hash, err := s.store.Put(p.Name, image)
	if err != nil {
		return nil, InternalServerErrorf("failed to store image: %v", err)
	}
	s.log.Info("image imported",
		zap.String("name", p.Name),
		zap.Stringer("hash", hash),
		zap.Int("size", len(image)))

	return ImportImageResult{Hash: hash.String(), Size: len(image)}, nil
}

// listImages lists the catalog.
func (s *Server) listImages(params json.RawMessage) (interface{}, *RPCError) {
	infos, err := s.store.List()
	if err != nil {
		return nil, InternalServerErrorf("failed to list images: %v", err)
	}

	result := make([]ImageInfo, 0, len(infos))
	for _, info := range infos {
		result = append(result, ImageInfo{
			Hash:    info.Hash.String(),
			Names:   info.Names,
			Size:    info.Size,
			AddedAt: info.AddedAt,
		})
	}
	return result, nil
}

// Session methods

// lookupSession resolves the session named in params.
func (s *Server) lookupSession(id string) (*session, *RPCError) {
	if id == "" {
		return nil, InvalidParamsError("missing session")
	}
	sess, err := s.sessions.get(id)
	if err != nil {
		return nil, SessionNotFoundError(id)
	}
	return sess, nil
}

// createSession starts a machine on an image.
func (s *Server) createSession(params json.RawMessage) (interface{}, *RPCError) {
	var ref ImageRef
	if rpcErr := decodeParams(params, &ref); rpcErr != nil {
		return nil, rpcErr
	}
	prog, rpcErr := s.resolveImage(ref)
	if rpcErr != nil {
		return nil, rpcErr
	}

	sess, err := s.sessions.open(prog.Hash, func(id int) *intcode.Machine {
		return s.newMachine(id, prog.Image)
	})
	if errors.Is(err, errSessionLimit) {
		return nil, ErrTooManySessions
	}
	if err != nil {
		return nil, InternalServerErrorf("failed to create session: %v", err)
	}

	s.log.Debug("session created",
		zap.String("session", sess.id),
		zap.String("image", prog.Hash.Short()))

	return CreateSessionResult{Session: sess.id, Hash: prog.Hash.String()}, nil
}

// pushInput appends values to a session's input queue.
func (s *Server) pushInput(params json.RawMessage) (interface{}, *RPCError) {
	var p PushInputParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	sess, rpcErr := s.lookupSession(p.Session)
	if rpcErr != nil {
		return nil, rpcErr
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.m.PushInputs(p.Values...)
	return PushInputResult{Pending: sess.m.InputSize()}, nil
}

// run resumes a session until it suspends or terminates. Output is drained
// into the result unless keep is set, in which case it stays queued for
// popOutput.
func (s *Server) run(params json.RawMessage) (interface{}, *RPCError) {
	var p RunParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	sess, rpcErr := s.lookupSession(p.Session)
	if rpcErr != nil {
		return nil, rpcErr
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	status, err := sess.m.Run()
	outputs := []int64{}
	if !p.Keep || err != nil {
		outputs = append(outputs, sess.m.DrainOutput()...)
	}
	if err != nil {
		return nil, MachineFaultError(err, outputs)
	}
	return RunResult{
		Status:  status.String(),
		Outputs: outputs,
		Pending: sess.m.OutputSize(),
		Steps:   sess.m.Steps(),
	}, nil
}

// popOutput removes the oldest pending output of a session.
func (s *Server) popOutput(params json.RawMessage) (interface{}, *RPCError) {
	var p SessionParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	sess, rpcErr := s.lookupSession(p.Session)
	if rpcErr != nil {
		return nil, rpcErr
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	v, err := sess.m.PopOutput()
	if errors.Is(err, intcode.ErrEmptyOutput) {
		return PopOutputResult{}, nil
	}
	if err != nil {
		return nil, InternalServerErrorf("pop output: %v", err)
	}
	return PopOutputResult{Value: v, OK: true}, nil
}

// sessionStatus reports a session's machine state.
func (s *Server) sessionStatus(params json.RawMessage) (interface{}, *RPCError) {
	var p SessionParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	sess, rpcErr := s.lookupSession(p.Session)
	if rpcErr != nil {
		return nil, rpcErr
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	st := SessionStatus{
		Session:       sess.id,
		Hash:          sess.hash.String(),
		State:         sess.m.State().String(),
		IP:            sess.m.IP(),
		RelativeBase:  sess.m.RelativeBase(),
		Steps:         sess.m.Steps(),
		PendingInput:  sess.m.InputSize(),
		PendingOutput: sess.m.OutputSize(),
		CreatedAt:     sess.createdAt,
	}
	if err := sess.m.Err(); err != nil {
		st.Error = err.Error()
	}
	return st, nil
}

// closeSession discards a session.
func (s *Server) closeSession(params json.RawMessage) (interface{}, *RPCError) {
	var p SessionParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Session == "" {
		return nil, InvalidParamsError("missing session")
	}
	if err := s.sessions.close(p.Session); err != nil {
		return nil, SessionNotFoundError(p.Session)
	}
	s.log.Debug("session closed", zap.String("session", p.Session))
	return true, nil
}

// One-shot execution

// execute runs an image on a fixed input sequence.
func (s *Server) execute(params json.RawMessage) (interface{}, *RPCError) {
	var p ExecuteParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	prog, rpcErr := s.resolveImage(p.ImageRef)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if s.cache == nil {
		m := s.newMachine(0, prog.Image)
		m.PushInputs(p.Inputs...)
		status, err := m.Run()
		outputs := m.DrainOutput()
		if err != nil {
			return nil, MachineFaultError(err, outputs)
		}
		if outputs == nil {
			outputs = []int64{}
		}
		return ExecuteResult{Status: status.String(), Outputs: outputs, Steps: m.Steps()}, nil
	}

	res, cached, err := s.cache.Execute(prog, p.Inputs)
	if err != nil {
		var fault *intcode.FaultError
		if errors.As(err, &fault) {
			return nil, MachineFaultError(err, nil)
		}
		return nil, InternalServerErrorf("execute: %v", err)
	}
	outputs := res.Outputs
	if outputs == nil {
		outputs = []int64{}
	}
	return ExecuteResult{
		Status:  res.Status.String(),
		Outputs: outputs,
		Steps:   res.Steps,
		Cached:  cached,
	}, nil
}

// Node methods

// getHealth returns the server health.
func (s *Server) getHealth(params json.RawMessage) (interface{}, *RPCError) {
	return "ok", nil
}

// getVersion returns version information.
func (s *Server) getVersion(params json.RawMessage) (interface{}, *RPCError) {
	return VersionInfo{Version: Version, Sessions: s.sessions.len()}, nil
}
