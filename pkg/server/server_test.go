package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/notebooklets/pkg/config"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/providers"
	"github.com/opensoc/notebooklets/pkg/registry"
)

var stubMetadata = []byte(`
metadata:
  name: StubSummary
  description: Summarizes a stub target for API tests
  default_options:
    - summary: Produce the summary text
  other_options:
    - extra: Produce the extra detail
  entity_types:
    - host
  keywords:
    - stub
  req_providers:
    - localdata
output:
  run:
    title: Stub summary
`)

type stubResult struct {
	notebooklet.CoreResult

	Summary string `json:"summary"`
}

func (r *stubResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "summary", Description: "Summary of the target", Value: r.Summary},
	}
}

type stubNotebooklet struct {
	notebooklet.Base
}

func newStub(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(stubMetadata, "stub")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &stubNotebooklet{Base: base}, nil
}

func (n *stubNotebooklet) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
	if err := n.Begin(params); err != nil {
		return nil, err
	}

	if params.Value == "" {
		return nil, nberrors.NewMissingParameterError("value")
	}

	result := &stubResult{
		CoreResult: notebooklet.NewCoreResult("Stub summary of "+params.Value, n.Timespan()),
		Summary:    "all quiet on " + params.Value,
	}
	n.SetLastResult(result)

	return result, nil
}

func testService(t *testing.T, cfg config.ServerConfig) *Service {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	set := providers.NewSet(logger)

	local, err := providers.NewLocalData(logger, providers.LocalDataConfig{Path: t.TempDir()})
	require.NoError(t, err)
	set.Register(local)

	reg := registry.New(logger)
	require.NoError(t, reg.Discover([]registry.Descriptor{
		{Path: "stub.host.summary", Metadata: stubMetadata, New: newStub},
	}))

	env := &notebooklet.Environment{
		Providers: set,
		Log:       logger,
		Silent:    true,
	}

	return NewService(logger, cfg, false, reg, env)
}

func TestHealthEndpoint(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ready", body["registry_state"])
	assert.Equal(t, float64(1), body["notebooklet_count"])
}

func TestListEndpoint(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/notebooklets")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Notebooklets []notebookletInfo `json:"notebooklets"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Notebooklets, 1)
	assert.Equal(t, "stub.host.summary", body.Notebooklets[0].Path)
	assert.Equal(t, "StubSummary", body.Notebooklets[0].Name)
	assert.Equal(t, []string{"summary"}, body.Notebooklets[0].DefaultOptions)
}

func TestSearchEndpoint(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/notebooklets/search?terms=stub")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Matches []map[string]any `json:"matches"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Matches, 1)
	assert.Equal(t, "stub.host.summary", body.Matches[0]["path"])
}

func TestSearchEndpointRequiresTerms(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/notebooklets/search")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDetailEndpoint(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/notebooklets/stub.host.summary")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Notebooklet notebookletInfo   `json:"notebooklet"`
		OptionsDoc  string            `json:"options_doc"`
		Sections    map[string]string `json:"sections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "StubSummary", body.Notebooklet.Name)
	assert.Contains(t, body.OptionsDoc, "summary")
	assert.Equal(t, "Stub summary", body.Sections["run"])
}

func TestDetailEndpointNotFound(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/notebooklets/no.such.path")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func postRun(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)

	return resp
}

func TestRunEndpoint(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp := postRun(t, ts.URL+"/api/v1/notebooklets/stub.host.summary/run", runRequest{
		Value: "victim01",
		Start: "2024-01-01T00:00:00Z",
		End:   "2024-01-02T00:00:00Z",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body runResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "stub.host.summary", body.Path)
	assert.Equal(t, "Stub summary of victim01", body.Description)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "summary", body.Fields[0].Name)
	assert.Equal(t, "all quiet on victim01", body.Fields[0].Value)
}

func TestRunEndpointMissingValue(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp := postRun(t, ts.URL+"/api/v1/notebooklets/stub.host.summary/run", runRequest{
		Start: "2024-01-01T00:00:00Z",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunEndpointInvalidOption(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp := postRun(t, ts.URL+"/api/v1/notebooklets/stub.host.summary/run", runRequest{
		Value:   "victim01",
		Start:   "2024-01-01T00:00:00Z",
		Options: []string{"bogus"},
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunEndpointMissingTimespan(t *testing.T) {
	svc := testService(t, config.ServerConfig{})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	resp := postRun(t, ts.URL+"/api/v1/notebooklets/stub.host.summary/run", runRequest{
		Value: "victim01",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	svc := testService(t, config.ServerConfig{
		Auth: config.AuthConfig{Enabled: true, SecretKey: "test-secret"},
	})
	ts := httptest.NewServer(svc.router())
	defer ts.Close()

	// No token.
	resp, err := http.Get(ts.URL + "/api/v1/notebooklets")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Garbage token.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/notebooklets", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token.
	token, err := IssueToken("test-secret", "analyst", time.Hour)
	require.NoError(t, err)

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/api/v1/notebooklets", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open.
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIssueTokenRejectsWrongSecret(t *testing.T) {
	svc := testService(t, config.ServerConfig{
		Auth: config.AuthConfig{Enabled: true, SecretKey: "right-secret"},
	})

	token, err := IssueToken("wrong-secret", "analyst", time.Hour)
	require.NoError(t, err)

	_, err = svc.validateToken(token)
	require.Error(t, err)
}
