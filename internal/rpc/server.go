package rpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region server-struct

// Server implements ComposerServer on top of a Composer and, for Turn, an
// Orchestrator.
type Server struct {
	composer *composer.Composer
	orch     *orchestrator.Orchestrator
	defaults decision.HeuristicsConfig
	clock    func() time.Time
	logger   *zap.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithOrchestrator enables the Turn method.
func WithOrchestrator(o *orchestrator.Orchestrator) ServerOption {
	return func(s *Server) { s.orch = o }
}

// WithHeuristics sets defaults applied to every Compose decision.
func WithHeuristics(def decision.HeuristicsConfig) ServerOption {
	return func(s *Server) { s.defaults = def }
}

// WithClock sets the clock used by Analyze when no timestamp is given.
func WithClock(clock func() time.Time) ServerOption {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a Server around c.
func NewServer(c *composer.Composer, opts ...ServerOption) *Server {
	s := &Server{
		composer: c,
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewGRPCServer returns a grpc.Server with s registered and request logging installed.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logUnary))
	g := grpc.NewServer(opts...)
	Register(g, s)
	return g
}

// #endregion server-struct

// #region methods

// Compose implements ComposerServer.
func (s *Server) Compose(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ComposeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	if req.Strict {
		if err := req.Decision.Validate(); err != nil {
			return nil, invalid(err)
		}
	}
	req.Decision.Heuristics = req.Decision.Heuristics.WithDefaults(s.defaults)

	res := s.composer.Compose(req.Decision)
	resp := ComposeResponse{Prompt: res.Prompt, Modules: moduleIDs(res)}
	if req.Debug {
		resp.Debug = &res.Debug
	}
	return respond(resp)
}

// Analyze implements ComposerServer.
func (s *Server) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AnalyzeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	at := req.At
	if at.IsZero() {
		at = s.clock().UTC()
	}
	return respond(AnalyzeResponse{Signals: signals.Analyze(req.Text, at)})
}

// Turn implements ComposerServer.
func (s *Server) Turn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.orch == nil {
		return nil, status.Error(codes.Unimplemented, "session turns are not enabled")
	}
	var req TurnRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, invalid(err)
	}

	r, err := s.orch.Turn(ctx, req.TurnInput)
	if errors.Is(err, orchestrator.ErrMissingSession) {
		return nil, invalid(err)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp := TurnResponse{
		TurnID:    r.TurnID,
		Action:    string(r.Action),
		Reason:    r.Reason,
		Prompt:    r.Result.Prompt,
		Modules:   moduleIDs(r.Result),
		Fired:     r.Fired,
		VersionID: r.VersionID,
	}
	if req.Debug {
		resp.Debug = &r.Result.Debug
	}
	return respond(resp)
}

// #endregion methods

// #region helpers

func moduleIDs(res composer.Result) []string {
	ids := make([]string, len(res.Modules))
	for i, m := range res.Modules {
		ids[i] = m.ID
	}
	return ids
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc",
		zap.String("method", info.FullMethod),
		zap.Duration("took", time.Since(start)),
		zap.String("code", status.Code(err).String()))
	return resp, err
}

// #endregion helpers
