package registryrpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/georgeannie/mlops-framework/internal/components"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region server
// Server serves a components.Registry.
type Server struct {
	registry components.Registry
	log      *slog.Logger
}

// NewServer wraps registry.
func NewServer(registry components.Registry) *Server {
	return &Server{registry: registry, log: logging.New("registryrpc")}
}

func (s *Server) ListVersions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(in, "name")
	if err != nil {
		return nil, err
	}
	versions, err := s.registry.ListVersions(ctx, name)
	if err != nil {
		return nil, s.internal("list versions", err)
	}
	list := make([]any, len(versions))
	for i, v := range versions {
		list[i] = v
	}
	return structpb.NewStruct(map[string]any{"versions": list})
}

func (s *Server) GetTags(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(in, "name")
	if err != nil {
		return nil, err
	}
	version, err := requireString(in, "version")
	if err != nil {
		return nil, err
	}
	tags, err := s.registry.GetTags(ctx, name, version)
	if err != nil {
		return nil, s.internal("get tags", err)
	}
	out := make(map[string]any, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return structpb.NewStruct(map[string]any{"tags": out})
}

func (s *Server) Publish(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(in, "name")
	if err != nil {
		return nil, err
	}
	doc, err := requireString(in, "document")
	if err != nil {
		return nil, err
	}
	version, err := s.registry.Publish(ctx, name, []byte(doc))
	if errors.Is(err, components.ErrInvalidDescriptor) {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		return nil, s.internal("publish", err)
	}
	s.log.Info("component version published", "component", name, "version", version)
	return structpb.NewStruct(map[string]any{"version": version})
}

func (s *Server) internal(op string, err error) error {
	s.log.Error(op+" failed", "error", err)
	return status.Errorf(codes.Internal, "%s: %v", op, err)
}

// #endregion server

func requireString(in *structpb.Struct, key string) (string, error) {
	v := in.GetFields()[key].GetStringValue()
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}
