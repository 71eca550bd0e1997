package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errors map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values: map[string]string{},
		errors: map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err, ok := f.errors[req.GetName()]; ok {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func TestResolveSecretCachesRemoteValue(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/shop/secrets/session_hash/versions/latest"
	client.values[resource] = "remote-secret"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("shop"), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.ResolveSecret(ctx, "secret://session_hash")
		if err != nil {
			t.Fatalf("ResolveSecret returned error: %v", err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %s", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected one remote call, got %d", calls)
	}
}

func TestResolveSecretHonoursProjectAndVersion(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/other/secrets/stripe/versions/3"] = "pinned"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("shop"), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	got, err := fetcher.ResolveSecret(ctx, "secret://stripe?version=3&project=other")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "pinned" {
		t.Fatalf("expected pinned, got %s", got)
	}
}

func TestResolveSecretFallsBackWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# dev\nsm://session_hash=local-secret\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	client := newFakeSecretClient()
	client.errors["projects/shop/secrets/session_hash/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("shop"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	got, err := fetcher.ResolveSecret(ctx, "secret://session_hash")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected fallback value, got %s", got)
	}
}

func TestResolveSecretPropagatesHardErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors["projects/shop/secrets/session_hash/versions/latest"] = status.Error(codes.InvalidArgument, "bad")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("shop"), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	if _, err := fetcher.ResolveSecret(ctx, "secret://session_hash"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := fetcher.ResolveSecret(ctx, "https://not-a-secret"); err == nil {
		t.Fatal("expected scheme error")
	}
}
