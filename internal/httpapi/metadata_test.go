package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func getJSON(t *testing.T, e *env, target string, wantStatus int) map[string]any {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != wantStatus {
		t.Fatalf("GET %s: expected %d, got %d: %s", target, wantStatus, rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", target, err)
	}
	return body
}

func TestProtectedResourceMetadata(t *testing.T) {
	e := newEnv(t)
	body := getJSON(t, e, "/.well-known/oauth-protected-resource/github", http.StatusOK)

	if body["resource"] != "http://proxy.example/github" {
		t.Errorf("resource = %v", body["resource"])
	}
	servers, ok := body["authorization_servers"].([]any)
	if !ok || len(servers) != 1 || servers[0] != "http://proxy.example/github" {
		t.Errorf("authorization_servers = %v", body["authorization_servers"])
	}
	if body["resource_name"] != "GitHub" {
		t.Errorf("resource_name = %v", body["resource_name"])
	}
}

func TestProtectedResourceMetadataNestedPath(t *testing.T) {
	e := newEnv(t)
	body := getJSON(t, e, "/.well-known/oauth-protected-resource/github/issues/42", http.StatusOK)
	if body["resource"] != "http://proxy.example/github/issues/42" {
		t.Errorf("resource = %v", body["resource"])
	}
}

func TestProtectedResourceMetadataUnknownTenant(t *testing.T) {
	e := newEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAuthorizationServerMetadata(t *testing.T) {
	e := newEnv(t)
	body := getJSON(t, e, "/.well-known/oauth-authorization-server/github", http.StatusOK)

	if body["issuer"] != "http://proxy.example/github" {
		t.Errorf("issuer = %v", body["issuer"])
	}
	if body["authorization_endpoint"] != "http://proxy.example/authorize/github" {
		t.Errorf("authorization_endpoint = %v", body["authorization_endpoint"])
	}
	if body["token_endpoint"] != "http://proxy.example/token" {
		t.Errorf("token_endpoint = %v", body["token_endpoint"])
	}
	if body["registration_endpoint"] != "http://proxy.example/register" {
		t.Errorf("registration_endpoint = %v", body["registration_endpoint"])
	}

	scopes, _ := body["scopes_supported"].([]any)
	found := false
	for _, s := range scopes {
		if s == "repo" {
			found = true
		}
	}
	if !found {
		t.Errorf("scopes_supported missing tenant scope: %v", scopes)
	}

	methods, _ := body["code_challenge_methods_supported"].([]any)
	if len(methods) != 1 || methods[0] != "S256" {
		t.Errorf("code_challenge_methods_supported = %v", methods)
	}
}

func TestRegisterReturnsFixedClient(t *testing.T) {
	e := newEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodPost, "/register", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["client_id"] != "vscode-client" {
		t.Errorf("client_id = %v", body["client_id"])
	}
	if body["token_endpoint_auth_method"] != "none" {
		t.Errorf("token_endpoint_auth_method = %v", body["token_endpoint_auth_method"])
	}
	uris, _ := body["redirect_uris"].([]any)
	if len(uris) == 0 {
		t.Error("redirect_uris empty")
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
