package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Project domain.Project
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("demo")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	p, err := eng.CreateProject(ctx, "demo", "test project", "PRD: build the thing", "tester")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Project: p}
}

func initPhases(t *testing.T, env testEnv) map[string]domain.LifecyclePhase {
	t.Helper()
	phases, err := env.Engine.InitLifecyclePhases(env.Ctx, env.Project.ID, "tester")
	if err != nil {
		t.Fatalf("init phases: %v", err)
	}
	if len(phases) != 6 {
		t.Fatalf("expected 6 phases, got %d", len(phases))
	}
	byKind := make(map[string]domain.LifecyclePhase, len(phases))
	for _, p := range phases {
		byKind[p.Phase] = p
	}
	return byKind
}

func TestPhaseSequenceGate(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)

	p, err := env.Engine.StartPhase(env.Ctx, phases["concept"].ID, "tester")
	if err != nil {
		t.Fatalf("start concept: %v", err)
	}
	if p.Status != "in_progress" || p.ActualStartDate == nil {
		t.Fatalf("concept not started: %+v", p)
	}

	_, err = env.Engine.StartPhase(env.Ctx, phases["define"].ID, "tester")
	var seqErr *engine.SequenceViolationError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected sequence violation, got %v", err)
	}
	if seqErr.Previous != "concept" {
		t.Fatalf("unexpected blocking phase %s", seqErr.Previous)
	}
}

func TestPhaseApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)

	if _, err := env.Engine.StartPhase(env.Ctx, phases["concept"].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitForApproval(env.Ctx, phases["concept"].ID, "tester"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	p, err := env.Engine.ApprovePhase(env.Ctx, phases["concept"].ID, "pm", "looks good")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.Status != "approved" || p.ApprovedBy == nil || *p.ApprovedBy != "pm" {
		t.Fatalf("approval trail missing: %+v", p)
	}
	if p.ActualEndDate == nil {
		t.Fatalf("expected actual end date")
	}

	// Approval rolls work into the next phase automatically.
	next, err := env.Engine.Repo.GetPhase(env.Ctx, phases["define"].ID)
	if err != nil {
		t.Fatal(err)
	}
	if next.Status != "in_progress" || next.ActualStartDate == nil {
		t.Fatalf("define not auto-started: %+v", next)
	}
}

func TestApproveRequiresPending(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)

	_, err := env.Engine.ApprovePhase(env.Ctx, phases["concept"].ID, "pm", "")
	var trErr *engine.InvalidTransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if trErr.From != "not_started" || trErr.To != "approved" {
		t.Fatalf("unexpected transition error: %+v", trErr)
	}

	_, err = env.Engine.SubmitForApproval(env.Ctx, phases["concept"].ID, "tester")
	if !errors.As(err, &trErr) {
		t.Fatalf("expected invalid transition on submit, got %v", err)
	}
}

func TestOverridePhase(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)

	_, err := env.Engine.OverridePhase(env.Ctx, phases["develop"].ID, "", "tester")
	var valErr *engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for empty reason, got %v", err)
	}

	// The override trail needs a named actor, not just a reason.
	_, err = env.Engine.OverridePhase(env.Ctx, phases["develop"].ID, "pilot hardware arrived early", "")
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for empty actor, got %v", err)
	}

	p, err := env.Engine.OverridePhase(env.Ctx, phases["develop"].ID, "pilot hardware arrived early", "lead")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if !p.SequenceOverridden || p.Status != "in_progress" {
		t.Fatalf("override not applied: %+v", p)
	}
	if p.OverriddenBy == nil || *p.OverriddenBy != "lead" || p.OverrideReason == nil {
		t.Fatalf("override trail missing: %+v", p)
	}

	// A second override of the same phase is no longer a valid transition.
	_, err = env.Engine.OverridePhase(env.Ctx, phases["develop"].ID, "again", "lead")
	var trErr *engine.InvalidTransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSkipPhase(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)

	p, err := env.Engine.SkipPhase(env.Ctx, phases["sustain"].ID, "not applicable for internal tooling", "admin")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if p.Status != "skipped" {
		t.Fatalf("expected skipped, got %s", p.Status)
	}
	_, err = env.Engine.SkipPhase(env.Ctx, phases["sustain"].ID, "again", "admin")
	var trErr *engine.InvalidTransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestRejectApproval(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)

	if _, err := env.Engine.StartPhase(env.Ctx, phases["concept"].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitForApproval(env.Ctx, phases["concept"].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.RejectApproval(env.Ctx, phases["concept"].ID, "missing business case", "pm")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if p.Status != "in_progress" {
		t.Fatalf("expected in_progress after rejection, got %s", p.Status)
	}
}

func TestPhaseProgress(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)
	phaseID := phases["concept"].ID

	var ids []int64
	for _, title := range []string{"a", "b", "c", "d"} {
		task, err := env.Engine.CreateServiceTask(env.Ctx, phaseID, engine.ServiceTaskCreate{Title: title, IsRequired: true}, "tester")
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		ids = append(ids, task.ID)
	}
	updated, err := env.Engine.BulkUpdateTaskStatus(env.Ctx, phaseID, ids[:3], "completed", "tester")
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if updated != 3 {
		t.Fatalf("expected 3 updated, got %d", updated)
	}
	// Not-applicable tasks stay in the denominator but never count as done.
	na := "not_applicable"
	if _, err := env.Engine.UpdateServiceTask(env.Ctx, ids[3], repo.ServiceTaskUpdate{Status: &na}, "tester"); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.Repo.GetPhase(env.Ctx, phaseID)
	if err != nil {
		t.Fatal(err)
	}
	if p.TaskCount != 4 || p.CompletedTaskCount != 3 {
		t.Fatalf("unexpected counts on direct get: %+v", p)
	}
	if got := p.ProgressPercent(); got != 75 {
		t.Fatalf("expected 75%% progress, got %d", got)
	}

	summary, err := env.Engine.LifecycleSummary(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalTasks != 4 || summary.CompletedTasks != 3 {
		t.Fatalf("unexpected summary counts: %+v", summary)
	}
}

func TestBulkUpdateSkipsForeignIDs(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)

	mine, err := env.Engine.CreateServiceTask(env.Ctx, phases["concept"].ID, engine.ServiceTaskCreate{Title: "mine"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.Engine.CreateServiceTask(env.Ctx, phases["define"].ID, engine.ServiceTaskCreate{Title: "other"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	updated, err := env.Engine.BulkUpdateTaskStatus(env.Ctx, phases["concept"].ID, []int64{mine.ID, other.ID, 99999}, "completed", "tester")
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected only the in-phase task updated, got %d", updated)
	}
	got, err := env.Engine.Repo.GetServiceTask(env.Ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "not_started" {
		t.Fatalf("foreign task should be untouched, got %s", got.Status)
	}
}

func TestServiceTaskCompletionStamps(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)

	task, err := env.Engine.CreateServiceTask(env.Ctx, phases["concept"].ID, engine.ServiceTaskCreate{Title: "stamped"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	status := "completed"
	got, err := env.Engine.UpdateServiceTask(env.Ctx, task.ID, repo.ServiceTaskUpdate{Status: &status}, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.CompletedAt == nil || got.ActualCompleteDate == nil {
		t.Fatalf("completion stamps missing: %+v", got)
	}
	if *got.ActualCompleteDate != "2024-01-01" {
		t.Fatalf("unexpected completion date %s", *got.ActualCompleteDate)
	}
}

func TestAnalyzeProjectWithStub(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.AnalyzeProject(env.Ctx, env.Project.ID, "tester")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if p.Status != "ready" {
		t.Fatalf("expected ready, got %s", p.Status)
	}
	stories, err := env.Engine.Repo.ListStoriesByProject(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stories) != 2 {
		t.Fatalf("expected 2 stub stories, got %d", len(stories))
	}
}

func TestAnalyzeLifecycleWithStub(t *testing.T) {
	env := newTestEnv(t)
	summary, err := env.Engine.AnalyzeLifecycle(env.Ctx, env.Project.ID, "tester")
	if err != nil {
		t.Fatalf("analyze lifecycle: %v", err)
	}
	if len(summary.Phases) != 6 {
		t.Fatalf("expected 6 phases, got %d", len(summary.Phases))
	}
	if summary.TotalTasks == 0 {
		t.Fatalf("expected generated service tasks")
	}
	if summary.EstimatedCompletionDate == nil {
		t.Fatalf("expected estimated completion date")
	}
}

func TestAnalyzeLifecycleRejectsExistingPhases(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.AnalyzeLifecycle(env.Ctx, env.Project.ID, "tester")
	if err != nil {
		t.Fatalf("analyze lifecycle: %v", err)
	}

	// A rerun would duplicate every generated task.
	_, err = env.Engine.AnalyzeLifecycle(env.Ctx, env.Project.ID, "tester")
	var valErr *engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error on re-analysis, got %v", err)
	}
	summary, err := env.Engine.LifecycleSummary(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalTasks != first.TotalTasks {
		t.Fatalf("task count changed %d -> %d", first.TotalTasks, summary.TotalTasks)
	}

	// Initialized phases block analysis the same way.
	env2 := newTestEnv(t)
	initPhases(t, env2)
	_, err = env2.Engine.AnalyzeLifecycle(env2.Ctx, env2.Project.ID, "tester")
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error after init, got %v", err)
	}
}

func TestLinkServiceTask(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)
	ids := seedStories(t, env, 1)

	task, err := env.Engine.CreateServiceTask(env.Ctx, phases["develop"].ID, engine.ServiceTaskCreate{Title: "dev checklist"}, "tester")
	if err != nil {
		t.Fatal(err)
	}

	var valErr *engine.ValidationError
	if _, err := env.Engine.LinkServiceTask(env.Ctx, task.ID, nil, nil, "tester"); !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for empty link, got %v", err)
	}
	missing := int64(99999)
	if _, err := env.Engine.LinkServiceTask(env.Ctx, task.ID, nil, &missing, "tester"); !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for foreign story, got %v", err)
	}

	got, err := env.Engine.LinkServiceTask(env.Ctx, task.ID, nil, &ids[0], "tester")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if got.LinkedStoryID == nil || *got.LinkedStoryID != ids[0] {
		t.Fatalf("story link missing: %+v", got)
	}

	// Zero clears the link again.
	zero := int64(0)
	got, err = env.Engine.LinkServiceTask(env.Ctx, task.ID, nil, &zero, "tester")
	if err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if got.LinkedStoryID != nil {
		t.Fatalf("link should be cleared: %+v", got)
	}
}

func TestEventAppendOnPhaseChanges(t *testing.T) {
	env := newTestEnv(t)
	phases := initPhases(t, env)
	if _, err := env.Engine.StartPhase(env.Ctx, phases["concept"].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitForApproval(env.Ctx, phases["concept"].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM events WHERE entity_kind='phase'`).Scan(&count); err != nil {
		t.Fatalf("query events: %v", err)
	}
	if count < 2 {
		t.Fatalf("expected phase events, got %d", count)
	}
}
