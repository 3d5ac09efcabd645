package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type stubProvider struct {
	name    string
	values  map[string]string
	resolve func(ref string) (string, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Resolve(_ context.Context, ref string) (string, error) {
	if s.resolve != nil {
		return s.resolve(ref)
	}
	if s.values == nil {
		return "", nil
	}
	return s.values[ref], nil
}

func (s *stubProvider) Close() error { return nil }

func TestParseSecretRef(t *testing.T) {
	provider, ref, ok := ParseSecretRef("secretref:stub:alpha")
	if !ok {
		t.Fatalf("expected secretref to parse")
	}
	if provider != "stub" || ref != "alpha" {
		t.Fatalf("unexpected values: %q %q", provider, ref)
	}

	_, _, ok = ParseSecretRef("not-a-secretref")
	if ok {
		t.Fatalf("expected non-secretref to fail")
	}
}

func TestResolver_ResolvesFullSecretRef(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"alpha": "one"}})

	got, err := r.ResolveValue(context.Background(), "secretref:stub:alpha")
	if err != nil {
		t.Fatalf("ResolveValue() error = %v", err)
	}
	if got != "one" {
		t.Fatalf("ResolveValue() = %q, want %q", got, "one")
	}
}

func TestResolver_ResolvesInlineSecretRef(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"beta": "two"}})

	got, err := r.ResolveValue(context.Background(), "Bearer secretref:stub:beta")
	if err != nil {
		t.Fatalf("ResolveValue() error = %v", err)
	}
	if got != "Bearer two" {
		t.Fatalf("ResolveValue() = %q, want %q", got, "Bearer two")
	}
}

func TestResolver_StrictEmptyProviderValueErrors(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"empty": ""}})

	_, err := r.ResolveValue(context.Background(), "secretref:stub:empty")
	if !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("ResolveValue() error = %v, want ErrEmptySecret", err)
	}
}

func TestResolver_LenientAllowsEmptyValue(t *testing.T) {
	r := NewResolver(false, &stubProvider{name: "stub", values: map[string]string{"empty": ""}})

	got, err := r.ResolveValue(context.Background(), "secretref:stub:empty")
	if err != nil || got != "" {
		t.Fatalf("ResolveValue() = %q, %v, want empty and nil", got, err)
	}
}

func TestResolver_UnknownProvider(t *testing.T) {
	r := NewResolver(true)

	_, err := r.ResolveValue(context.Background(), "secretref:vault:db")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("ResolveValue() error = %v, want ErrUnknownProvider", err)
	}
}

func TestResolver_ResolveFields(t *testing.T) {
	t.Setenv("S3_KEY_ID", "AKIA")
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"alpha": "one"}})

	keyID := "${S3_KEY_ID}"
	secretKey := "secretref:stub:alpha"
	empty := ""
	err := r.ResolveFields(context.Background(), map[string]*string{
		"s3.access_key_id":     &keyID,
		"s3.secret_access_key": &secretKey,
		"azure.connection":     &empty,
		"unset":                nil,
	})
	if err != nil {
		t.Fatalf("ResolveFields() error = %v", err)
	}
	if keyID != "AKIA" || secretKey != "one" || empty != "" {
		t.Fatalf("resolved = %q %q %q, want AKIA one and empty", keyID, secretKey, empty)
	}
}

func TestResolver_ResolveFieldsNamesFieldNotValue(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{}})

	v := "secretref:stub:hunter2"
	err := r.ResolveFields(context.Background(), map[string]*string{"azure.connection_string": &v})
	if err == nil {
		t.Fatal("ResolveFields() error = nil, want empty secret error")
	}
	if !strings.Contains(err.Error(), "azure.connection_string") {
		t.Errorf("error = %v, want field name", err)
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("error = %v, leaks the reference", err)
	}
}

func TestResolver_ProviderResolveErrorPropagates(t *testing.T) {
	boom := errors.New("explode")
	r := NewResolver(true, &stubProvider{name: "stub", resolve: func(ref string) (string, error) {
		if ref == "boom" {
			return "", boom
		}
		return "ok", nil
	}})

	_, err := r.ResolveValue(context.Background(), "secretref:stub:boom")
	if !errors.Is(err, boom) {
		t.Fatalf("ResolveValue() error = %v, want %v", err, boom)
	}
}

func TestResolver_NilExpandsOnly(t *testing.T) {
	t.Setenv("REGION", "eu-west-1")
	var r *Resolver

	got, err := r.ResolveValue(context.Background(), "${REGION}")
	if err != nil || got != "eu-west-1" {
		t.Fatalf("ResolveValue() = %q, %v, want eu-west-1", got, err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDefaultResolver(t *testing.T) {
	t.Setenv("AZURE_KEY", "k3y")
	path := filepath.Join(t.TempDir(), "s3-secret")
	if err := os.WriteFile(path, []byte("s3cr3t\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r := NewDefaultResolver()
	defer func() { _ = r.Close() }()

	tests := []struct {
		in   string
		want string
	}{
		{"secretref:env:AZURE_KEY", "k3y"},
		{"secretref:file:" + path, "s3cr3t"},
		{"AccountKey=secretref:env:AZURE_KEY;", "AccountKey=k3y;"},
	}
	for _, tt := range tests {
		got, err := r.ResolveValue(context.Background(), tt.in)
		if err != nil {
			t.Errorf("ResolveValue(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := r.ResolveValue(context.Background(), "secretref:env:NOT_SET_ANYWHERE"); !errors.Is(err, ErrMissingEnv) {
		t.Errorf("missing env error = %v, want ErrMissingEnv", err)
	}
}
