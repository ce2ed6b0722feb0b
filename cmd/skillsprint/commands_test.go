package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skillsprint/coach/internal/api"
	"github.com/skillsprint/coach/internal/composer"
	"github.com/skillsprint/coach/internal/config"
	"github.com/skillsprint/coach/internal/pipeline"
	"github.com/skillsprint/coach/internal/sprint"
)

type recordedRequest struct {
	Method   string
	Path     string
	Body     string
	Auth     string
	Passcode string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:   r.Method,
			Path:     r.URL.RequestURI(),
			Body:     body.String(),
			Auth:     r.Header.Get("Authorization"),
			Passcode: r.Header.Get(api.PasscodeHeader),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.Server.Port = 8787
	cfg.LLM.Models = []string{"gpt-4o-mini"}
	cfg.LLM.Timeout = "10s"
	cfg.LLM.MaxTokensBrief = 220
	cfg.LLM.MaxTokensSprint = 500
	cfg.LLM.MaxTokensFollowup = 300
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
	if ts.requests[0].Passcode != "my-secret-token" {
		t.Errorf("passcode header = %q, want my-secret-token", ts.requests[0].Passcode)
	}
}

func TestAPIClient_NoTokenSendsNoCredentials(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = ""

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if r := ts.requests[0]; r.Auth != "" || r.Passcode != "" {
		t.Errorf("credentials sent without a token: %+v", r)
	}
}

func TestAskServer(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/coach": `{"reply":"ok","quick":["Start sprint"],"learningLinks":[],"sprintSeed":null}`,
	})

	req := pipeline.Request{User: "brief on roas"}
	req.Profile.Focus = []string{"Marketing"}

	if err := askServer(ctx, ts.client(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/api/coach" {
		t.Errorf("request = %s %s, want POST /api/coach", r.Method, r.Path)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["user"] != "brief on roas" {
		t.Errorf("body.user = %v", body["user"])
	}
	if _, ok := body["kpis"]; ok {
		t.Error("kpis should be omitted when not given")
	}
}

func TestAskServer_ErrorStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	err := askServer(ctx, ts.client(), pipeline.Request{User: "hi"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want it to contain 404", err)
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestBuildCoachRequest(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "profile.json")
	kpisPath := filepath.Join(dir, "kpis.json")
	os.WriteFile(profilePath, []byte(`{"focus":["Ops"],"goals30d":["Ship weekly"]}`), 0o644)
	os.WriteFile(kpisPath, []byte(`{"Marketing":{"ROAS":{"unit":"x","current":3.1,"target":4}}}`), 0o644)

	req, err := buildCoachRequest("start a sprint", "Marketing, Sales", profilePath, kpisPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.User != "start a sprint" {
		t.Errorf("User = %q", req.User)
	}
	if got := strings.Join(req.Profile.Focus, "|"); got != "Marketing|Sales" {
		t.Errorf("Focus = %q, want Marketing|Sales", got)
	}
	if len(req.Profile.Goals30d) != 1 {
		t.Errorf("Goals30d = %v", req.Profile.Goals30d)
	}
	if !req.KPIs.Has("Marketing") {
		t.Errorf("KPIs = %v", req.KPIs)
	}
}

func TestBuildCoachRequest_BadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	os.WriteFile(path, []byte(`{not json`), 0o644)

	if _, err := buildCoachRequest("hi", "", path, ""); err == nil {
		t.Fatal("expected error for malformed profile")
	}
	if _, err := buildCoachRequest("hi", "", filepath.Join(t.TempDir(), "missing.json"), ""); err == nil {
		t.Fatal("expected error for missing profile")
	}
}

func TestNewApp_OfflinePipeline(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if a.gateway.Configured() {
		t.Fatal("gateway should not be configured without an API key")
	}

	res, trace := a.coach.Respond(ctx, pipeline.Request{User: "brief on roas"})
	if trace.Source != pipeline.SourceFallback {
		t.Errorf("Source = %q, want fallback", trace.Source)
	}
	if res.Reply == "" || len(res.Quick) == 0 {
		t.Errorf("result = %+v", res)
	}

	day := a.sprints.Generate(ctx, sprint.Request{})
	if day.Mode != sprint.ModeMock || day.Day == nil {
		t.Errorf("sprint = %+v", day)
	}
}

func TestNewApp_BadContentPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Content.Path = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := newApp(cfg); err == nil {
		t.Fatal("expected error for missing content pack")
	}
}

func TestPromptModes(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	for _, name := range []string{"brief", "resources", "general"} {
		mode, err := composer.ParseMode(name)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", name, err)
		}
		p := a.prompts.Build(composer.Input{Utterance: "hello"}, mode)
		if len(p.Messages) != 3 || p.Messages[2].Content != "hello" {
			t.Errorf("%s: messages = %+v", name, p.Messages)
		}
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/api/interactions")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPrintJSON_NoHTMLEscaping(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, map[string]string{"title": "clarity + proof <b>"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "clarity + proof <b>") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}

func TestPasscodeLabel(t *testing.T) {
	if got := passcodeLabel(false, false); got != "not required" {
		t.Errorf("got %q", got)
	}
	if got := passcodeLabel(true, true); !strings.Contains(got, "matches") {
		t.Errorf("got %q", got)
	}
	if got := passcodeLabel(true, false); !strings.Contains(got, "does not match") {
		t.Errorf("got %q", got)
	}
}

func TestPurgeCutoff(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := purgeCutoff(now, 0); !got.IsZero() {
		t.Errorf("purgeCutoff(0) = %v, want zero", got)
	}
	if got := purgeCutoff(now, 24*time.Hour); !got.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("purgeCutoff(24h) = %v", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, ,b ,c,")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("splitCSV = %q", got)
	}
	if splitCSV("") != nil {
		t.Error("splitCSV(\"\") should be nil")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("line one\nline two", 100); got != "line one line two" {
		t.Errorf("whitespace not collapsed: %q", got)
	}
	if got := truncate("ééééé", 3); got != "ééé..." {
		t.Errorf("got %q", got)
	}
}
