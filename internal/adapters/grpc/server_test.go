package grpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const grpcTestKey = "WXYZ-2345-ABCD-6789"

func newTestClient(t *testing.T) (*grpc.ClientConn, *memory.Repositories) {
	t.Helper()
	repos := memory.NewRepositories()
	svc := application.NewService(application.Dependencies{
		Licenses:    repos.Licenses,
		Activations: repos.Activations,
		Locker:      repos.Locker,
		Outbox:      repos.Outbox,
	})
	_, err := repos.Licenses.Create(context.Background(), ports.CreateLicenseParams{
		LicenseKey:     grpcTestKey,
		IsActive:       true,
		MaxActivations: 1,
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	Register(server, NewLicenseInternalServer(svc, slog.New(slog.NewTextHandler(io.Discard, nil))))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, repos
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	resp := &structpb.Struct{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp)
	return resp, err
}

func TestLicenseInternalServiceFlow(t *testing.T) {
	conn, repos := newTestClient(t)

	resp, err := invoke(t, conn, "Activate", map[string]any{"license_key": grpcTestKey, "domain": "rpc.example.com", "user_agent": "billing-service"})
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["success"].GetBoolValue())
	assert.Equal(t, "activated", resp.GetFields()["action"].GetStringValue())

	items, err := repos.Activations.List(context.Background(), ports.ActivationFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "billing-service", items[0].UserAgent)

	resp, err = invoke(t, conn, "Validate", map[string]any{"license_key": grpcTestKey, "domain": "other.example.com"})
	require.NoError(t, err)
	assert.False(t, resp.GetFields()["is_valid"].GetBoolValue())
	assert.Equal(t, "max_activations_reached", resp.GetFields()["reason"].GetStringValue())

	resp, err = invoke(t, conn, "Deactivate", map[string]any{"license_key": grpcTestKey, "domain": "rpc.example.com"})
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["success"].GetBoolValue())

	resp, err = invoke(t, conn, "Validate", map[string]any{"license_key": grpcTestKey, "domain": "other.example.com"})
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["is_valid"].GetBoolValue())
}

func TestLicenseInternalServiceRejectsMissingFields(t *testing.T) {
	conn, _ := newTestClient(t)

	for _, method := range []string{"Validate", "Activate", "Deactivate"} {
		_, err := invoke(t, conn, method, map[string]any{"license_key": grpcTestKey})
		require.Error(t, err, method)
		assert.Equal(t, codes.InvalidArgument, status.Code(err), method)
	}
}

func TestGRPCStatusMapping(t *testing.T) {
	s := NewLicenseInternalServer(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	assert.Equal(t, codes.DeadlineExceeded, status.Code(s.grpcStatus(ctx, "test", context.DeadlineExceeded)))
	assert.Equal(t, codes.Internal, status.Code(s.grpcStatus(ctx, "test", io.ErrUnexpectedEOF)))
	down := fmt.Errorf("%w: connection refused", domain.ErrStorageUnavailable)
	assert.Equal(t, codes.Unavailable, status.Code(s.grpcStatus(ctx, "test", down)))
	assert.Equal(t, codes.Unavailable, status.Code(s.grpcStatus(ctx, "test", domain.ErrDependencyUnavailable)))
}
