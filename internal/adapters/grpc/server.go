package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

const serviceName = "viralforge.license.v1.LicenseInternalService"

type LicenseInternalService interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Activate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deactivate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// LicenseInternalServer exposes the license engine to other mesh services.
// Refusals come back as OK responses with is_valid/success set to false.
type LicenseInternalServer struct {
	service *application.Service
	logger  *slog.Logger
}

func NewLicenseInternalServer(service *application.Service, logger *slog.Logger) *LicenseInternalServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseInternalServer{service: service, logger: logger}
}

func Register(server grpc.ServiceRegistrar, svc LicenseInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*LicenseInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Validate", Handler: unaryHandler("Validate", svc.Validate)},
			{MethodName: "Activate", Handler: unaryHandler("Activate", svc.Activate)},
			{MethodName: "Deactivate", Handler: unaryHandler("Deactivate", svc.Deactivate)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/license/v1/license_internal.proto",
	}, svc)
}

func (s *LicenseInternalServer) Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.service.Validate(ctx, application.ValidateRequest{
		LicenseKey: stringField(req, "license_key"),
		Domain:     stringField(req, "domain"),
	})
	if err != nil {
		return nil, s.grpcStatus(ctx, "validate", err)
	}
	return buildResponse(map[string]any{
		"is_valid": res.IsValid,
		"message":  res.Message,
		"reason":   string(res.Reason),
	})
}

func (s *LicenseInternalServer) Activate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ip := stringField(req, "ip_address")
	if ip == "" {
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			ip = p.Addr.String()
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}
		}
	}
	res, err := s.service.Activate(ctx, application.ActivateRequest{
		LicenseKey: stringField(req, "license_key"),
		Domain:     stringField(req, "domain"),
		IPAddress:  ip,
		UserAgent:  stringField(req, "user_agent"),
	})
	if err != nil {
		return nil, s.grpcStatus(ctx, "activate", err)
	}
	return actionResponse(res)
}

func (s *LicenseInternalServer) Deactivate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.service.Deactivate(ctx, application.DeactivateRequest{
		LicenseKey: stringField(req, "license_key"),
		Domain:     stringField(req, "domain"),
	})
	if err != nil {
		return nil, s.grpcStatus(ctx, "deactivate", err)
	}
	return actionResponse(res)
}

func actionResponse(res application.ActionResult) (*structpb.Struct, error) {
	return buildResponse(map[string]any{
		"success": res.Success,
		"message": res.Message,
		"action":  string(res.Action),
		"reason":  string(res.Reason),
	})
}

func buildResponse(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func stringField(req *structpb.Struct, name string) string {
	v := req.GetFields()[name]
	if v == nil {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func (s *LicenseInternalServer) grpcStatus(ctx context.Context, operation string, err error) error {
	code := codes.Internal
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		code, msg = codes.Canceled, "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		code, msg = codes.DeadlineExceeded, "deadline exceeded"
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrDependencyUnavailable):
		code, msg = codes.Unavailable, "storage unavailable"
	}
	s.logger.ErrorContext(ctx, "grpc operation failed",
		"service", "M91-License-Service",
		"module", "grpc",
		"layer", "adapter",
		"operation", operation,
		"outcome", "failure",
		"grpc_code", code.String(),
		"error", err,
	)
	return status.Error(code, msg)
}

type unaryFunc func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryFunc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
