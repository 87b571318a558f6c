// Package rpc exposes the reasoning pipeline as a server-streaming gRPC
// service. Messages are google.protobuf.Struct values carrying the same
// JSON shapes as the websocket surface, so no generated code is needed.
package rpc

// #region imports
import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/bibo/internal/logging"
	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/provider"
	"github.com/danielpatrickdp/bibo/internal/trace"
)

// #endregion

// #region wire

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "bibo.v1.Reasoner"
	runMethod   = "/" + ServiceName + "/Run"

	KindProgress = "progress"
	KindAnswer   = "answer"
)

// RunRequest is the decoded request message.
type RunRequest struct {
	Prompt  string                 `json:"prompt"`
	History []orchestrator.Message `json:"history,omitempty"`
	Mode    orchestrator.Mode      `json:"mode,omitempty"`
}

// streamItem is one message on the response stream.
type streamItem struct {
	Kind   string          `json:"kind"`
	Event  *progress.Event `json:"event,omitempty"`
	Answer string          `json:"answer,omitempty"`
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// #endregion wire

// #region service-desc

// ReasonerServer is the handler type registered for ServiceName.
type ReasonerServer interface {
	Run(req *structpb.Struct, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReasonerServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Run",
		Handler:       runHandler,
		ServerStreams: true,
	}},
	Metadata: "bibo/v1/reasoner.proto",
}

func runHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(ReasonerServer).Run(req, stream)
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}

// #endregion service-desc

// #region server

// Runner is the pipeline entry point; *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, prompt string, history []orchestrator.Message, sink progress.Sink, mode orchestrator.Mode) (string, error)
}

// Server implements ReasonerServer.
type Server struct {
	runner Runner
	store  *trace.Store
	logger *zap.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithStore records every served run in the trace store.
func WithStore(s *trace.Store) ServerOption {
	return func(srv *Server) { srv.store = s }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(srv *Server) { srv.logger = logging.OrNop(l) }
}

// NewServer wraps runner.
func NewServer(runner Runner, opts ...ServerOption) *Server {
	s := &Server{runner: runner, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run streams progress events and then the answer.
func (s *Server) Run(raw *structpb.Struct, stream grpc.ServerStream) error {
	var req RunRequest
	if err := fromStruct(raw, &req); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	mode, err := orchestrator.ParseMode(string(req.Mode))
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	ctx := stream.Context()

	// The orchestrator emits from one goroutine, so SendMsg is never
	// called concurrently.
	var sendErr error
	send := func(ev progress.Event) {
		if sendErr != nil {
			return
		}
		msg, err := toStruct(streamItem{Kind: KindProgress, Event: &ev})
		if err == nil {
			err = stream.SendMsg(msg)
		}
		if err != nil {
			sendErr = err
			s.logger.Debug("progress send failed", zap.Error(err))
		}
	}
	sink := progress.Sink(send)

	var rec *trace.Recorder
	if s.store != nil {
		rec, err = s.store.Begin(req.Prompt, mode, req.History)
		if err != nil {
			s.logger.Warn("trace begin failed", zap.Error(err))
		} else {
			sink = progress.Tee(send, rec.Record)
		}
	}

	answer, runErr := s.runner.Run(ctx, req.Prompt, req.History, sink, mode)
	if rec != nil {
		if err := rec.Finish(answer, runErr); err != nil {
			s.logger.Warn("trace finish failed", zap.String("run_id", rec.ID()), zap.Error(err))
		}
	}
	if runErr != nil {
		return toStatus(runErr)
	}
	if sendErr != nil {
		return status.Errorf(codes.Unavailable, "send progress: %v", sendErr)
	}

	msg, err := toStruct(streamItem{Kind: KindAnswer, Answer: answer})
	if err != nil {
		return status.Errorf(codes.Internal, "encode answer: %v", err)
	}
	return stream.SendMsg(msg)
}

// toStatus maps pipeline errors onto gRPC codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInput), errors.Is(err, provider.ErrInvalidRequest):
		code = codes.InvalidArgument
	case errors.Is(err, provider.ErrExhausted):
		code = codes.Unavailable
	case errors.Is(err, provider.ErrMisconfigured):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

// #endregion server
