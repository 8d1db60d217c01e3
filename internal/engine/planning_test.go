package engine_test

import (
	"errors"
	"testing"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/repo"
)

// seedStories inserts one epic with n stories and returns the story ids.
func seedStories(t *testing.T, env testEnv, n int) []int64 {
	t.Helper()
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	now := "2024-01-01T00:00:00Z"
	epicID, err := env.Engine.Repo.InsertEpicTx(env.Ctx, tx, domain.Epic{
		ProjectID: env.Project.ID,
		Title:     "seed epic",
		Priority:  "medium",
		CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for i := 0; i < n; i++ {
		id, err := env.Engine.Repo.InsertStoryTx(env.Ctx, tx, domain.Story{
			EpicID:    epicID,
			Title:     "seed story",
			Priority:  "medium",
			Status:    "backlog",
			Position:  i,
			CreatedAt: now,
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return ids
}

func TestCreateDependencyValidation(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 2)

	var valErr *engine.ValidationError
	_, err := env.Engine.CreateDependency(env.Ctx, env.Project.ID, engine.DependencyCreate{
		SourceType: "story", SourceID: ids[0], TargetType: "story", TargetID: ids[0],
	}, "tester")
	if !errors.As(err, &valErr) {
		t.Fatalf("expected self-loop rejection, got %v", err)
	}

	_, err = env.Engine.CreateDependency(env.Ctx, env.Project.ID, engine.DependencyCreate{
		SourceType: "story", SourceID: ids[0], TargetType: "story", TargetID: 99999,
	}, "tester")
	if !errors.As(err, &valErr) {
		t.Fatalf("expected missing item rejection, got %v", err)
	}

	d, err := env.Engine.CreateDependency(env.Ctx, env.Project.ID, engine.DependencyCreate{
		SourceType: "story", SourceID: ids[1], TargetType: "story", TargetID: ids[0],
	}, "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.DependencyType != "depends_on" || d.Status != "pending" {
		t.Fatalf("unexpected defaults: %+v", d)
	}
}

func TestCriticalPathLinearChain(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 3)

	// Durations 2, 3 and 4 hours via degenerate range estimates.
	for i, d := range []float64{2, 3, 4} {
		if _, err := env.Engine.SetRangeEstimate(env.Ctx, ids[i], d, d, d, "tester"); err != nil {
			t.Fatalf("estimate: %v", err)
		}
	}
	// Chain ids[0] -> ids[1] -> ids[2]; edges walk source to target.
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.CreateDependency(env.Ctx, env.Project.ID, engine.DependencyCreate{
			SourceType: "story", SourceID: ids[i], TargetType: "story", TargetID: ids[i+1],
		}, "tester"); err != nil {
			t.Fatal(err)
		}
	}

	path, err := env.Engine.CriticalPath(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("critical path: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected 3 path items, got %d", len(path))
	}
	wantTotals := []float64{2, 5, 9}
	for i, item := range path {
		if item.Item.ID != ids[i] {
			t.Fatalf("unexpected order at %d: %+v", i, item)
		}
		if item.TotalDuration != wantTotals[i] {
			t.Fatalf("total at %d: want %v got %v", i, wantTotals[i], item.TotalDuration)
		}
	}
}

func TestCriticalPathCycle(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 2)

	for _, pair := range [][2]int64{{ids[0], ids[1]}, {ids[1], ids[0]}} {
		if _, err := env.Engine.CreateDependency(env.Ctx, env.Project.ID, engine.DependencyCreate{
			SourceType: "story", SourceID: pair[0], TargetType: "story", TargetID: pair[1],
		}, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	_, err := env.Engine.CriticalPath(env.Ctx, env.Project.ID)
	var cycleErr *engine.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestCriticalPathExcludesResolved(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 3)

	var depIDs []int64
	for i := 0; i < 2; i++ {
		d, err := env.Engine.CreateDependency(env.Ctx, env.Project.ID, engine.DependencyCreate{
			SourceType: "story", SourceID: ids[i], TargetType: "story", TargetID: ids[i+1],
		}, "tester")
		if err != nil {
			t.Fatal(err)
		}
		depIDs = append(depIDs, d.ID)
	}
	resolved := "resolved"
	if _, err := env.Engine.UpdateDependency(env.Ctx, depIDs[0], repo.DependencyUpdate{Status: &resolved}, "tester"); err != nil {
		t.Fatal(err)
	}
	path, err := env.Engine.CriticalPath(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 2 {
		t.Fatalf("resolved edge should drop out, got %d items", len(path))
	}
}

func TestCriticalPathIgnoresBlocksEdges(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 2)

	if _, err := env.Engine.CreateDependency(env.Ctx, env.Project.ID, engine.DependencyCreate{
		SourceType: "story", SourceID: ids[0], TargetType: "story", TargetID: ids[1],
		DependencyType: "blocks",
	}, "tester"); err != nil {
		t.Fatal(err)
	}
	path, err := env.Engine.CriticalPath(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 0 {
		t.Fatalf("blocks edges carry no schedule, got %d items", len(path))
	}
}

func TestRICEScoring(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 1)

	est, err := env.Engine.SetRICEScores(env.Ctx, ids[0], 100, 2, 0.8, 4, "tester")
	if err != nil {
		t.Fatalf("rice: %v", err)
	}
	if est.RICEScore == nil || *est.RICEScore != 40 {
		t.Fatalf("expected score 40, got %+v", est.RICEScore)
	}

	_, err = env.Engine.SetRICEScores(env.Ctx, ids[0], 100, 2, 0.8, 0, "tester")
	var valErr *engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for zero effort, got %v", err)
	}
}

func TestWSJFScoring(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 1)

	est, err := env.Engine.SetWSJFScores(env.Ctx, ids[0], 8, 5, 5, 5, "tester")
	if err != nil {
		t.Fatalf("wsjf: %v", err)
	}
	if est.WSJFScore == nil || *est.WSJFScore != 3.6 {
		t.Fatalf("expected score 3.6, got %+v", est.WSJFScore)
	}

	_, err = env.Engine.SetWSJFScores(env.Ctx, ids[0], 8, 5, 5, 0, "tester")
	var valErr *engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for zero job size, got %v", err)
	}
}

func TestPrioritizedBacklog(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 4)

	if _, err := env.Engine.SetRICEScores(env.Ctx, ids[1], 100, 2, 0.8, 4, "tester"); err != nil { // 40
		t.Fatal(err)
	}
	if _, err := env.Engine.SetRICEScores(env.Ctx, ids[2], 50, 2, 0.8, 4, "tester"); err != nil { // 20
		t.Fatal(err)
	}
	if _, err := env.Engine.SetRICEScores(env.Ctx, ids[3], 50, 2, 0.8, 4, "tester"); err != nil { // 20, ties with ids[2]
		t.Fatal(err)
	}

	items, err := env.Engine.PrioritizedBacklog(env.Ctx, env.Project.ID, "rice")
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].Story.ID != ids[1] {
		t.Fatalf("highest score first, got story %d", items[0].Story.ID)
	}
	// Equal scores keep ascending id order.
	if items[1].Story.ID != ids[2] || items[2].Story.ID != ids[3] {
		t.Fatalf("tie-break order wrong: %d then %d", items[1].Story.ID, items[2].Story.ID)
	}
	// Unscored stories sort last.
	if items[3].Story.ID != ids[0] || items[3].Score != nil {
		t.Fatalf("unscored story should be last: %+v", items[3])
	}

	_, err = env.Engine.PrioritizedBacklog(env.Ctx, env.Project.ID, "vibes")
	var valErr *engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for unknown model, got %v", err)
	}
}

func TestRangeEstimateOrdering(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 1)

	_, err := env.Engine.SetRangeEstimate(env.Ctx, ids[0], 10, 8, 16, "tester")
	var valErr *engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for p10 > p50, got %v", err)
	}

	est, err := env.Engine.SetRangeEstimate(env.Ctx, ids[0], 4, 8, 16, "tester")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if est.EstimateP50 == nil || *est.EstimateP50 != 8 {
		t.Fatalf("estimate not stored: %+v", est)
	}
}

func TestGenerateEstimateWithStub(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 1)

	est, err := env.Engine.GenerateEstimate(env.Ctx, ids[0], "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if est.AIEstimateP50 == nil || *est.AIEstimateP50 != 8 {
		t.Fatalf("ai estimate not stored: %+v", est)
	}
	if est.AIReasoning == nil {
		t.Fatalf("expected reasoning")
	}
}

func TestInferDependenciesWithStub(t *testing.T) {
	env := newTestEnv(t)
	ids := seedStories(t, env, 2)

	created, err := env.Engine.InferDependencies(env.Ctx, env.Project.ID, "tester")
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected one inferred edge, got %d", len(created))
	}
	d := created[0]
	if !d.Inferred || d.Confidence == nil {
		t.Fatalf("inferred flags missing: %+v", d)
	}
	if d.SourceID != ids[1] || d.TargetID != ids[0] {
		t.Fatalf("unexpected edge: %+v", d)
	}
}

func TestDecisionAcceptanceStampsDate(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.CreateDecision(env.Ctx, env.Project.ID, engine.DecisionCreate{
		Title:    "store estimates per story",
		Decision: "one estimate row per story",
	}, "tester")
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	if d.DecisionDate != nil {
		t.Fatalf("proposed decision should carry no date: %+v", d)
	}
	got, err := env.Engine.SetDecisionStatus(env.Ctx, d.ID, "accepted", "tester")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.DecisionDate == nil {
		t.Fatalf("acceptance should stamp the decision date: %+v", got)
	}
}

func TestExtractPlanningWithStub(t *testing.T) {
	env := newTestEnv(t)
	decisions, assumptions, err := env.Engine.ExtractPlanning(env.Ctx, env.Project.ID, "tester")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(decisions) != 1 || len(assumptions) != 2 {
		t.Fatalf("unexpected extract counts: %d decisions, %d assumptions", len(decisions), len(assumptions))
	}
	if decisions[0].Status != "proposed" || assumptions[0].Status != "unvalidated" {
		t.Fatalf("unexpected initial statuses")
	}
}
