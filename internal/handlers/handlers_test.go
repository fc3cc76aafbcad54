package handlers

import (
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, http.MethodGet, "/health", nil, nil)
	body := decodeJSONMap(t, resp)

	assertStatus(t, resp, http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("expected health status %q, got %v", "ok", body["status"])
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	env := setupTestEnv(t)

	testCases := []struct {
		name            string
		path            string
		authorization   string
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:            "missing authorization header",
			path:            "/api/auth/me",
			authorization:   "",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "missing authorization header",
		},
		{
			name:            "malformed authorization header",
			path:            "/api/auth/me",
			authorization:   "Token abc",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "invalid authorization format",
		},
		{
			name:            "bearer header without token value",
			path:            "/api/auth/me",
			authorization:   "Bearer ",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "invalid authorization format",
		},
		{
			name:            "invalid jwt token",
			path:            "/api/dashboard",
			authorization:   "Bearer not-a-valid-jwt",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "invalid or expired token",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.authorization != "" {
				headers["Authorization"] = tc.authorization
			}

			resp := performRequest(t, env.app, http.MethodGet, tc.path, nil, headers)
			body := decodeJSONMap(t, resp)

			assertStatus(t, resp, tc.expectedStatus)
			assertEnvelopeError(t, body, tc.expectedMessage)
		})
	}
}
