package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"incidentdesk/config"
	"incidentdesk/core/appbootstrap"
	"incidentdesk/core/auth"
	"incidentdesk/core/store/storetest"
	"incidentdesk/core/utils"

	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Code       string          `json:"code"`
	Data       json.RawMessage `json:"data"`
	Errors     []string        `json:"errors"`
	Pagination *struct {
		TotalCount int `json:"totalCount"`
	} `json:"pagination"`
}

type testClient struct {
	t      *testing.T
	server *httptest.Server
}

func (c *testClient) do(method, path, token string, body any) (int, apiResponse) {
	c.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, c.server.URL+path, &payload)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	var out apiResponse
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (c *testClient) login(email, password string) string {
	c.t.Helper()
	status, resp := c.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, status, resp.Message)
	var data struct {
		Tokens auth.Tokens `json:"tokens"`
	}
	require.NoError(c.t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(c.t, data.Tokens.AccessToken)
	return data.Tokens.AccessToken
}

func newTestApp(t *testing.T) *testClient {
	t.Helper()
	cfg := &config.AppConfig{
		AppEnv: "test",
		JWT: config.JWTConfig{
			Secret:     "integration-secret-integration-secret",
			Issuer:     "incidentdesk",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: time.Hour,
			ResetTTL:   time.Hour,
		},
		Security: config.SecurityConfig{
			MaxFailedLogins:  5,
			AuthRatePerMin:   100,
			AuthBurst:        100,
			UploadRatePerMin: 100,
			UploadBurst:      100,
		},
		Uploads: config.UploadsConfig{Backend: "disk", Dir: t.TempDir(), MaxFiles: 5, MaxFileBytes: 1 << 20},
		Notify:  config.NotifyConfig{Driver: "memory", BufferSize: 8},
		Bootstrap: config.BootstrapConfig{
			AdminUsername: "root",
			AdminEmail:    "root@example.com",
			AdminPassword: "RootPass123!",
		},
	}
	db := storetest.NewDB(t)
	app, err := appbootstrap.Compose(context.Background(), cfg, db, appbootstrap.Options{
		Argon2:         &auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		SkipMigrations: true,
	}, utils.NewLogger())
	require.NoError(t, err)
	t.Cleanup(app.Close)
	srv := httptest.NewServer(app.Server.Handler())
	t.Cleanup(srv.Close)
	return &testClient{t: t, server: srv}
}

func TestIncidentLifecycleEndToEnd(t *testing.T) {
	c := newTestApp(t)

	status, resp := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "AlicePass123",
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	require.True(t, resp.Success)

	status, resp = c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "AlicePass123",
	})
	require.Equal(t, http.StatusConflict, status)

	alice := c.login("alice@example.com", "AlicePass123")

	status, resp = c.do(http.MethodPost, "/api/v1/incidents", alice, map[string]any{
		"title":       "Phishing email",
		"description": "Received suspicious email with malicious link",
		"category":    "phishing",
		"priority":    "high",
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var created struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Severity int    `json:"severity"`
		Priority string `json:"priority"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.Equal(t, "open", created.Status)
	require.Equal(t, 5, created.Severity)
	require.Equal(t, "high", created.Priority)

	status, _ = c.do(http.MethodGet, "/api/v1/users", alice, nil)
	require.Equal(t, http.StatusForbidden, status)

	admin := c.login("root@example.com", "RootPass123!")

	status, resp = c.do(http.MethodPatch, "/api/v1/incidents/bulk-update", admin, map[string]any{
		"incidentIds":     []string{created.ID},
		"status":          "resolved",
		"resolutionNotes": "Sender blocked at the gateway",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	require.Equal(t, "Successfully updated 1 incidents", resp.Message)

	status, resp = c.do(http.MethodGet, "/api/v1/incidents/"+created.ID, admin, nil)
	require.Equal(t, http.StatusOK, status)
	var resolved struct {
		Status         string  `json:"status"`
		ResolutionTime *int    `json:"resolutionTime"`
		ResolvedBy     *string `json:"resolvedBy"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &resolved))
	require.Equal(t, "resolved", resolved.Status)
	require.NotNil(t, resolved.ResolutionTime)
	require.NotNil(t, resolved.ResolvedBy)

	expected := map[string]int{"bulk_status_update": 1, "incident_status_changed": 0, "incident_resolved": 0}
	for action, count := range expected {
		status, resp = c.do(http.MethodGet, "/api/v1/audit-logs?action="+action, admin, nil)
		require.Equal(t, http.StatusOK, status)
		require.NotNil(t, resp.Pagination)
		require.Equal(t, count, resp.Pagination.TotalCount, action)
	}

	status, resp = c.do(http.MethodPatch, "/api/v1/incidents/"+created.ID+"/status", admin, map[string]string{"status": "closed"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	status, resp = c.do(http.MethodGet, "/api/v1/audit-logs?action=incident_status_changed", admin, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, resp.Pagination.TotalCount)

	status, _ = c.do(http.MethodGet, "/api/v1/audit-logs", alice, nil)
	require.Equal(t, http.StatusForbidden, status)
}

func TestUserCannotReadForeignIncident(t *testing.T) {
	c := newTestApp(t)

	for _, name := range []string{"alice", "bob"} {
		status, resp := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"username": name,
			"email":    name + "@example.com",
			"password": "Password123",
		})
		require.Equal(t, http.StatusCreated, status, resp.Message)
	}
	alice := c.login("alice@example.com", "Password123")
	bob := c.login("bob@example.com", "Password123")

	status, resp := c.do(http.MethodPost, "/api/v1/incidents", alice, map[string]any{
		"title":       "Laptop infected",
		"description": "Antivirus flagged a trojan on the finance laptop",
		"category":    "malware",
		"severity":    8,
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	status, resp = c.do(http.MethodGet, "/api/v1/incidents/"+created.ID, bob, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.False(t, resp.Success)

	status, resp = c.do(http.MethodGet, "/api/v1/incidents", bob, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, resp.Pagination.TotalCount)

	status, resp = c.do(http.MethodPatch, "/api/v1/incidents/"+created.ID+"/status", alice, map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusForbidden, status)
}

func TestHealthAndMissingToken(t *testing.T) {
	c := newTestApp(t)

	status, resp := c.do(http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Server is running", resp.Message)

	status, resp = c.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Access token is required", resp.Message)

	status, _ = c.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestListOwnSessions(t *testing.T) {
	c := newTestApp(t)

	status, resp := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "AlicePass123",
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	alice := c.login("alice@example.com", "AlicePass123")

	status, resp = c.do(http.MethodGet, "/api/v1/auth/sessions", alice, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	var sessions []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &sessions))
	require.Len(t, sessions, 2)
	for _, sess := range sessions {
		require.Equal(t, true, sess["isValid"])
		require.NotContains(t, sess, "refreshTokenHash")
	}

	status, _ = c.do(http.MethodGet, "/api/v1/auth/sessions", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}
