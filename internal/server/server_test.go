package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("planline")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func createTestProject(t *testing.T, srv *testServer) domain.Project {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name":        "demo",
		"prd_content": "Build a small planning tool.",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func projectPath(srv *testServer, p domain.Project, suffix string) string {
	return srv.URL + "/v0/projects/" + itoa(p.ID) + suffix
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestLifecycleFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createTestProject(t, srv)

	initRes, initBody := doJSON(t, client, http.MethodPost, projectPath(srv, p, "/lifecycle/init"), nil)
	if initRes.StatusCode != http.StatusCreated {
		t.Fatalf("init lifecycle status %d: %s", initRes.StatusCode, string(initBody))
	}
	var phases []PhaseResponse
	if err := json.Unmarshal(initBody, &phases); err != nil {
		t.Fatalf("unmarshal phases: %v", err)
	}
	if len(phases) != 6 {
		t.Fatalf("expected 6 phases, got %d", len(phases))
	}

	// Starting define before concept cleared the gate must conflict.
	res, body := doJSON(t, client, http.MethodPost, projectPath(srv, p, "/phases/define/start"), nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(body))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "sequence_violation" {
		t.Fatalf("expected sequence_violation, got %q", envelope.Error.Code)
	}

	for _, step := range []string{"/phases/concept/start", "/phases/concept/submit", "/phases/concept/approve"} {
		res, body := doJSON(t, client, http.MethodPost, projectPath(srv, p, step), map[string]any{})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", step, res.StatusCode, string(body))
		}
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, projectPath(srv, p, "/phases"), nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list phases status %d: %s", listRes.StatusCode, string(listBody))
	}
	if err := json.Unmarshal(listBody, &phases); err != nil {
		t.Fatalf("unmarshal phases: %v", err)
	}
	byKind := map[string]PhaseResponse{}
	for _, ph := range phases {
		byKind[ph.Phase] = ph
	}
	if byKind[domain.PhaseConcept].Status != domain.PhaseApproved {
		t.Fatalf("concept status = %q", byKind[domain.PhaseConcept].Status)
	}
	if byKind[domain.PhaseDefine].Status != domain.PhaseInProgress {
		t.Fatalf("define should auto-start, got %q", byKind[domain.PhaseDefine].Status)
	}
}

func TestPhaseApproveRequiresPending(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createTestProject(t, srv)

	if res, body := doJSON(t, client, http.MethodPost, projectPath(srv, p, "/lifecycle/init"), nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("init lifecycle status %d: %s", res.StatusCode, string(body))
	}
	res, body := doJSON(t, client, http.MethodPost, projectPath(srv, p, "/phases/concept/approve"), map[string]any{})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(body))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", envelope.Error.Code)
	}
}

func TestOverrideRequiresReason(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createTestProject(t, srv)

	if res, body := doJSON(t, client, http.MethodPost, projectPath(srv, p, "/lifecycle/init"), nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("init lifecycle status %d: %s", res.StatusCode, string(body))
	}
	res, body := doJSON(t, client, http.MethodPost, projectPath(srv, p, "/phases/plan/override"), map[string]any{"reason": ""})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, projectPath(srv, p, "/phases/plan/override"), map[string]any{"reason": "launch deadline moved up"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("override status %d: %s", res.StatusCode, string(body))
	}
	var ph PhaseResponse
	if err := json.Unmarshal(body, &ph); err != nil {
		t.Fatalf("unmarshal phase: %v", err)
	}
	if !ph.SequenceOverridden {
		t.Fatal("expected sequence_overridden")
	}
}

func TestDependenciesAndCriticalPathOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createTestProject(t, srv)

	// The stub collaborator produces one epic with two stories.
	if res, body := doJSON(t, client, http.MethodPost, projectPath(srv, p, "/analyze"), nil); res.StatusCode != http.StatusOK {
		t.Fatalf("analyze status %d: %s", res.StatusCode, string(body))
	}
	res, body := doJSON(t, client, http.MethodGet, projectPath(srv, p, "/stories"), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list stories status %d: %s", res.StatusCode, string(body))
	}
	var stories []domain.Story
	if err := json.Unmarshal(body, &stories); err != nil {
		t.Fatalf("unmarshal stories: %v", err)
	}
	if len(stories) < 2 {
		t.Fatalf("expected at least 2 stories, got %d", len(stories))
	}

	res, body = doJSON(t, client, http.MethodPost, projectPath(srv, p, "/dependencies"), map[string]any{
		"source_type": "story",
		"source_id":   stories[1].ID,
		"target_type": "story",
		"target_id":   stories[0].ID,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create dependency status %d: %s", res.StatusCode, string(body))
	}

	// Self-loops are rejected.
	res, body = doJSON(t, client, http.MethodPost, projectPath(srv, p, "/dependencies"), map[string]any{
		"source_type": "story",
		"source_id":   stories[0].ID,
		"target_type": "story",
		"target_id":   stories[0].ID,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for self-loop, got %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, projectPath(srv, p, "/critical-path"), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("critical path status %d: %s", res.StatusCode, string(body))
	}
	var cp CriticalPathResponse
	if err := json.Unmarshal(body, &cp); err != nil {
		t.Fatalf("unmarshal critical path: %v", err)
	}
	if len(cp.Path) < 2 {
		t.Fatalf("expected at least 2 path items, got %d", len(cp.Path))
	}
	if cp.TotalDuration <= 0 {
		t.Fatalf("expected positive total duration, got %v", cp.TotalDuration)
	}
}

func TestBacklogScoringOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createTestProject(t, srv)

	if res, body := doJSON(t, client, http.MethodPost, projectPath(srv, p, "/analyze"), nil); res.StatusCode != http.StatusOK {
		t.Fatalf("analyze status %d: %s", res.StatusCode, string(body))
	}
	res, body := doJSON(t, client, http.MethodGet, projectPath(srv, p, "/stories"), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list stories status %d: %s", res.StatusCode, string(body))
	}
	var stories []domain.Story
	if err := json.Unmarshal(body, &stories); err != nil {
		t.Fatalf("unmarshal stories: %v", err)
	}

	res, body = doJSON(t, client, http.MethodPut, srv.URL+"/v0/stories/"+itoa(stories[0].ID)+"/estimate/rice", map[string]any{
		"reach":      100,
		"impact":     2,
		"confidence": 0.8,
		"effort":     4,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rice status %d: %s", res.StatusCode, string(body))
	}
	var est domain.StoryEstimate
	if err := json.Unmarshal(body, &est); err != nil {
		t.Fatalf("unmarshal estimate: %v", err)
	}
	if est.RICEScore == nil || *est.RICEScore != 40 {
		t.Fatalf("rice score = %v, want 40", est.RICEScore)
	}

	// Zero effort is rejected before anything is stored.
	res, body = doJSON(t, client, http.MethodPut, srv.URL+"/v0/stories/"+itoa(stories[0].ID)+"/estimate/rice", map[string]any{
		"reach":      10,
		"impact":     1,
		"confidence": 0.5,
		"effort":     0,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero effort, got %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, projectPath(srv, p, "/backlog?model=rice"), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("backlog status %d: %s", res.StatusCode, string(body))
	}
	var items []engine.BacklogItem
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatalf("unmarshal backlog: %v", err)
	}
	if len(items) != len(stories) {
		t.Fatalf("backlog has %d items, want %d", len(items), len(stories))
	}
	if items[0].Score == nil || *items[0].Score != 40 {
		t.Fatalf("top item score = %v, want 40", items[0].Score)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/9999", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(body))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", envelope.Error.Code)
	}
}
