// Package remote exposes Intcode execution as a gRPC service.
//
// The intcode.v1.Executor service is described by hand and carries JSON
// encoded messages under the "json" content-subtype, so no generated code
// is needed on either side.
package remote

import (
	"context"
	"errors"
	"net"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/fortiblox/intcode/pkg/imagestore"
	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/fortiblox/intcode/pkg/loader"
	"github.com/fortiblox/intcode/pkg/runcache"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the full gRPC service name.
const ServiceName = "intcode.v1.Executor"

// Config holds gRPC service configuration.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string

	// StepLimit bounds uncached executions (0 means unlimited). Cached
	// executions use the run cache's own limit.
	StepLimit uint64

	// MaxMessageSize is the largest request or response in bytes.
	MaxMessageSize int
}

// DefaultConfig returns a default service configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:8971",
		StepLimit:      100_000_000,
		MaxMessageSize: 16 * 1024 * 1024,
	}
}

// ImageStore is the part of the image catalog the service uses.
type ImageStore interface {
	Put(name string, image []int64) (types.ImageHash, error)
	Get(hash types.ImageHash) (*imagestore.Record, error)
}

// RunCache executes runs, memoising the results.
type RunCache interface {
	Execute(prog *loader.Program, inputs []int64) (*runcache.Result, bool, error)
}

// ExecutorServer is the server API of the Executor service.
type ExecutorServer interface {
	Execute(context.Context, *ExecuteRequest) (*ExecuteResponse, error)
	Import(context.Context, *ImportRequest) (*ImportResponse, error)
}

// Server implements ExecutorServer on an image catalog and run cache.
type Server struct {
	config Config
	store  ImageStore
	cache  RunCache
	log    *zap.Logger
}

var _ ExecutorServer = (*Server)(nil)

// NewServer creates the service. cache may be nil, in which case every
// request is executed.
func NewServer(config Config, store ImageStore, cache RunCache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config: config,
		store:  store,
		cache:  cache,
		log:    logger,
	}
}

// Register attaches the service to a gRPC server.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Serve serves the service on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(s.config.MaxMessageSize),
		grpc.MaxSendMsgSize(s.config.MaxMessageSize),
	)
	s.Register(gs)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			gs.GracefulStop()
		case <-done:
		}
	}()

	s.log.Info("grpc server starting", zap.String("addr", lis.Addr().String()))
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Execute runs an image on the request's inputs.
func (s *Server) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	prog, err := s.program(req)
	if err != nil {
		return nil, err
	}

	var res *runcache.Result
	cached := false
	if s.cache != nil {
		res, cached, err = s.cache.Execute(prog, req.Inputs)
	} else {
		res, err = s.run(prog, req.Inputs)
	}
	if err != nil {
		var fault *intcode.FaultError
		if errors.As(err, &fault) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "execute: %v", err)
	}

	s.log.Debug("executed",
		zap.String("image", prog.Hash.Short()),
		zap.Stringer("status", res.Status),
		zap.Bool("cached", cached))

	outputs := res.Outputs
	if outputs == nil {
		outputs = []int64{}
	}
	return &ExecuteResponse{
		Outputs: outputs,
		Status:  res.Status,
		Steps:   res.Steps,
		Cached:  cached,
	}, nil
}

// Import stores an image.
func (s *Server) Import(ctx context.Context, req *ImportRequest) (*ImportResponse, error) {
	hash, err := s.store.Put(req.Name, req.Image)
	switch {
	case errors.Is(err, imagestore.ErrEmptyName), errors.Is(err, imagestore.ErrEmptyImage):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		return nil, status.Errorf(codes.Internal, "import: %v", err)
	}
	s.log.Info("image imported", zap.String("name", req.Name), zap.Stringer("hash", hash))
	return &ImportResponse{Hash: hash.String()}, nil
}

// program resolves the image of an execute request.
func (s *Server) program(req *ExecuteRequest) (*loader.Program, error) {
	switch {
	case req.ImageHash != "" && len(req.Image) > 0:
		return nil, status.Error(codes.InvalidArgument, "imageHash and image are mutually exclusive")
	case len(req.Image) > 0:
		return loader.NewProgram("inline", req.Image), nil
	case req.ImageHash == "":
		return nil, status.Error(codes.InvalidArgument, "imageHash or image is required")
	}

	hash, err := types.ImageHashFromBase58(req.ImageHash)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid image hash: %v", err)
	}
	rec, err := s.store.Get(hash)
	if errors.Is(err, imagestore.ErrImageNotFound) {
		return nil, status.Errorf(codes.NotFound, "image %s not found", req.ImageHash)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "image store: %v", err)
	}
	return loader.NewProgram(hash.Short(), rec.Image), nil
}

// run executes a program without the cache.
func (s *Server) run(prog *loader.Program, inputs []int64) (*runcache.Result, error) {
	m := intcode.New(0, prog.Image, intcode.Opts{
		Logger:    s.log.Named("vm"),
		StepLimit: s.config.StepLimit,
	})
	m.PushInputs(inputs...)
	st, err := m.Run()
	if err != nil {
		return nil, err
	}
	cell0, err := m.Memory().Get(0)
	if err != nil {
		return nil, err
	}
	return &runcache.Result{
		Outputs: m.DrainOutput(),
		Status:  st,
		Steps:   m.Steps(),
		Cell0:   cell0,
	}, nil
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ExecuteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Execute",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExecutorServer).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func importHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ImportRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServer).Import(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Import",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExecutorServer).Import(ctx, req.(*ImportRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExecutorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
		{MethodName: "Import", Handler: importHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "intcode/v1/executor",
}
