package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJWTRoundTrip(t *testing.T) {
	initAuth()

	token, err := generateJWT("frank")
	if err != nil {
		t.Fatalf("generateJWT failed: %v", err)
	}

	claims, err := verifyJWT(token)
	if err != nil {
		t.Fatalf("verifyJWT failed: %v", err)
	}
	if claims.Username != "frank" {
		t.Errorf("Expected username frank, got %s", claims.Username)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	initAuth()

	if _, err := verifyJWT("not.a.token"); err == nil {
		t.Error("Expected an error for a malformed token")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	jwtSecret = []byte("first-secret")
	token, err := generateJWT("frank")
	if err != nil {
		t.Fatalf("generateJWT failed: %v", err)
	}

	jwtSecret = []byte("second-secret")
	if _, err := verifyJWT(token); err == nil {
		t.Error("A token signed with another secret must not verify")
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	initAuth()
	m := newTestManager()
	handler := handleLogin(m)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"frank"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	claims, err := verifyJWT(resp.Token)
	if err != nil {
		t.Fatalf("The issued token must verify: %v", err)
	}
	if claims.Username != "frank" {
		t.Errorf("Expected username frank in the token, got %s", claims.Username)
	}
}

func TestLoginRejectsTakenName(t *testing.T) {
	initAuth()
	m := newTestManager()
	connect(m, "frank")
	handler := handleLogin(m)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"frank"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a name in use, got %d", rec.Code)
	}
}

func TestLoginRejectsInvalidNames(t *testing.T) {
	initAuth()
	m := newTestManager()
	handler := handleLogin(m)

	for _, body := range []string{
		`{"username":""}`,
		`{"username":"   "}`,
		`{"username":"this-name-is-way-too-long-to-accept"}`,
		`{broken`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", body, rec.Code)
		}
	}
}
