package engine

import (
	"context"
	"fmt"
	"sort"

	"planline/internal/ai"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
	"planline/internal/scoring"
)

// DependencyCreate are parameters for adding a dependency edge.
type DependencyCreate struct {
	SourceType     string
	SourceID       int64
	TargetType     string
	TargetID       int64
	DependencyType string
	Notes          string
}

func (e Engine) CreateDependency(ctx context.Context, projectID int64, opts DependencyCreate, actorID string) (domain.Dependency, error) {
	if !domain.ValidItemType(opts.SourceType) || !domain.ValidItemType(opts.TargetType) {
		return domain.Dependency{}, &ValidationError{Msg: "item type must be epic, story or task"}
	}
	if opts.DependencyType == "" {
		opts.DependencyType = "depends_on"
	}
	if !domain.ValidDependencyType(opts.DependencyType) {
		return domain.Dependency{}, &ValidationError{Msg: "unknown dependency type " + opts.DependencyType}
	}
	if opts.SourceType == opts.TargetType && opts.SourceID == opts.TargetID {
		return domain.Dependency{}, &ValidationError{Msg: "an item cannot depend on itself"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Dependency{}, err
	}
	for _, ref := range []domain.ItemRef{{Type: opts.SourceType, ID: opts.SourceID}, {Type: opts.TargetType, ID: opts.TargetID}} {
		ok, err := e.itemInProject(ctx, projectID, ref)
		if err != nil {
			return domain.Dependency{}, err
		}
		if !ok {
			return domain.Dependency{}, &ValidationError{Msg: fmt.Sprintf("%s %d not found in project", ref.Type, ref.ID)}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dependency{}, err
	}
	defer tx.Rollback()
	d := domain.Dependency{
		ProjectID:      projectID,
		SourceType:     opts.SourceType,
		SourceID:       opts.SourceID,
		TargetType:     opts.TargetType,
		TargetID:       opts.TargetID,
		DependencyType: opts.DependencyType,
		Status:         "pending",
		CreatedAt:      e.timestamp(),
	}
	if opts.Notes != "" {
		d.Notes = &opts.Notes
	}
	id, err := e.Repo.InsertDependencyTx(ctx, tx, d)
	if err != nil {
		return domain.Dependency{}, err
	}
	if err := e.Events.Append(ctx, tx, "dependency.created", projectID, "dependency", itoa(id), actorID,
		events.EventPayload{"source": fmt.Sprintf("%s:%d", d.SourceType, d.SourceID), "target": fmt.Sprintf("%s:%d", d.TargetType, d.TargetID)}); err != nil {
		return domain.Dependency{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dependency{}, err
	}
	return e.Repo.GetDependency(ctx, id)
}

func (e Engine) UpdateDependency(ctx context.Context, id int64, upd repo.DependencyUpdate, actorID string) (domain.Dependency, error) {
	if upd.Status != nil && !domain.ValidDependencyStatus(*upd.Status) {
		return domain.Dependency{}, &ValidationError{Msg: "unknown dependency status " + *upd.Status}
	}
	if upd.DependencyType != nil && !domain.ValidDependencyType(*upd.DependencyType) {
		return domain.Dependency{}, &ValidationError{Msg: "unknown dependency type " + *upd.DependencyType}
	}
	d, err := e.Repo.GetDependency(ctx, id)
	if err != nil {
		return domain.Dependency{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dependency{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateDependencyTx(ctx, tx, id, upd); err != nil {
		return domain.Dependency{}, err
	}
	if err := e.Events.Append(ctx, tx, "dependency.updated", d.ProjectID, "dependency", itoa(id), actorID, nil); err != nil {
		return domain.Dependency{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dependency{}, err
	}
	return e.Repo.GetDependency(ctx, id)
}

func (e Engine) DeleteDependency(ctx context.Context, id int64, actorID string) error {
	d, err := e.Repo.GetDependency(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE id=?`, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "dependency.deleted", d.ProjectID, "dependency", itoa(id), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) itemInProject(ctx context.Context, projectID int64, ref domain.ItemRef) (bool, error) {
	var query string
	switch ref.Type {
	case "epic":
		query = `SELECT COUNT(*) FROM epics WHERE id=? AND project_id=?`
	case "story":
		query = `SELECT COUNT(*) FROM stories s JOIN epics e ON e.id=s.epic_id WHERE s.id=? AND e.project_id=?`
	case "task":
		query = `SELECT COUNT(*) FROM work_tasks t JOIN stories s ON s.id=t.story_id JOIN epics e ON e.id=s.epic_id WHERE t.id=? AND e.project_id=?`
	default:
		return false, nil
	}
	var n int
	if err := e.DB.QueryRowContext(ctx, query, ref.ID, projectID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// InferDependencies asks the collaborator to propose edges over the
// project's planning items and records them as inferred. Duplicates of
// existing edges are kept; review happens downstream.
func (e Engine) InferDependencies(ctx context.Context, projectID int64, actorID string) ([]domain.Dependency, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	items, err := e.collectItems(ctx, projectID)
	if err != nil {
		return nil, err
	}
	proposed, err := e.provider().InferDependencies(ctx, items)
	if err != nil {
		return nil, &CollaboratorError{Op: "infer dependencies", Err: err}
	}

	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[fmt.Sprintf("%s:%d", it.Type, it.ID)] = true
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	var created []domain.Dependency
	for _, edge := range proposed {
		// Drop proposals that reference items outside the project.
		if !known[fmt.Sprintf("%s:%d", edge.SourceType, edge.SourceID)] ||
			!known[fmt.Sprintf("%s:%d", edge.TargetType, edge.TargetID)] {
			continue
		}
		if edge.SourceType == edge.TargetType && edge.SourceID == edge.TargetID {
			continue
		}
		depType := edge.DependencyType
		if !domain.ValidDependencyType(depType) {
			depType = "depends_on"
		}
		confidence := edge.Confidence
		d := domain.Dependency{
			ProjectID:      projectID,
			SourceType:     edge.SourceType,
			SourceID:       edge.SourceID,
			TargetType:     edge.TargetType,
			TargetID:       edge.TargetID,
			DependencyType: depType,
			Status:         "pending",
			Inferred:       true,
			Confidence:     &confidence,
			CreatedAt:      now,
		}
		if edge.Reason != "" {
			reason := edge.Reason
			d.InferenceReason = &reason
		}
		id, err := e.Repo.InsertDependencyTx(ctx, tx, d)
		if err != nil {
			return nil, err
		}
		d.ID = id
		created = append(created, d)
	}
	if err := e.Events.Append(ctx, tx, "dependency.inferred", projectID, "dependency", "", actorID,
		events.EventPayload{"created": len(created)}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (e Engine) collectItems(ctx context.Context, projectID int64) ([]ai.ItemSummary, error) {
	var items []ai.ItemSummary
	epics, err := e.Repo.ListEpics(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, ep := range epics {
		items = append(items, ai.ItemSummary{Type: "epic", ID: ep.ID, Title: ep.Title, Description: ep.Description})
	}
	stories, err := e.Repo.ListStoriesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, s := range stories {
		items = append(items, ai.ItemSummary{Type: "story", ID: s.ID, Title: s.Title, Description: s.Description})
		tasks, err := e.Repo.ListWorkTasksByStory(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			items = append(items, ai.ItemSummary{Type: "task", ID: t.ID, Title: t.Title, Description: t.Description})
		}
	}
	return items, nil
}

const defaultItemHours = 8

// CriticalPath computes the longest chain through the project's
// dependency graph. Only unresolved depends_on edges order the walk;
// blocks and related edges are excluded. A cycle among the remaining
// edges is an error, not a silent truncation.
func (e Engine) CriticalPath(ctx context.Context, projectID int64) ([]domain.PathItem, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	deps, err := e.Repo.ListDependencies(ctx, projectID)
	if err != nil {
		return nil, err
	}

	type edge struct{ from, to string }
	var edges []edge
	nodes := make(map[string]domain.ItemRef)
	addNode := func(typ string, id int64) string {
		key := fmt.Sprintf("%s:%d", typ, id)
		nodes[key] = domain.ItemRef{Type: typ, ID: id}
		return key
	}
	for _, d := range deps {
		// Only unresolved depends_on edges order the schedule; blocks and
		// related edges carry no timing.
		if d.DependencyType != "depends_on" || d.Status == "resolved" {
			continue
		}
		src := addNode(d.SourceType, d.SourceID)
		dst := addNode(d.TargetType, d.TargetID)
		edges = append(edges, edge{from: src, to: dst})
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	durations := make(map[string]float64, len(nodes))
	for key, ref := range nodes {
		d, err := e.itemDuration(ctx, projectID, ref)
		if err != nil {
			return nil, err
		}
		durations[key] = d
	}

	succ := make(map[string][]string)
	indegree := make(map[string]int, len(nodes))
	for key := range nodes {
		indegree[key] = 0
	}
	for _, ed := range edges {
		succ[ed.from] = append(succ[ed.from], ed.to)
		indegree[ed.to]++
	}

	var queue []string
	for key, deg := range indegree {
		if deg == 0 {
			queue = append(queue, key)
		}
	}
	sort.Strings(queue)

	total := make(map[string]float64, len(nodes))
	bestPred := make(map[string]string, len(nodes))
	processed := 0
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		processed++
		total[key] += durations[key]
		next := succ[key]
		sort.Strings(next)
		for _, s := range next {
			if total[key] > total[s] {
				total[s] = total[key]
				bestPred[s] = key
			}
			indegree[s]--
			if indegree[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	if processed < len(nodes) {
		var stuck []string
		for key, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, key)
			}
		}
		sort.Strings(stuck)
		return nil, &CycleError{Node: stuck[0]}
	}

	// Walk back from the node with the largest finish time.
	var endKey string
	for key := range nodes {
		if endKey == "" || total[key] > total[endKey] || (total[key] == total[endKey] && key < endKey) {
			endKey = key
		}
	}
	var chain []string
	for key := endKey; ; {
		chain = append(chain, key)
		pred, ok := bestPred[key]
		if !ok {
			break
		}
		key = pred
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	var path []domain.PathItem
	running := 0.0
	for _, key := range chain {
		running += durations[key]
		path = append(path, domain.PathItem{
			Item:          nodes[key],
			Duration:      durations[key],
			TotalDuration: running,
		})
	}
	return path, nil
}

// itemDuration resolves an item's working duration in hours. Stories
// prefer the PERT expectation of their range estimate, then the p50,
// then estimated hours; everything else falls back to a flat default.
func (e Engine) itemDuration(ctx context.Context, projectID int64, ref domain.ItemRef) (float64, error) {
	switch ref.Type {
	case "story":
		est, err := e.Repo.GetEstimate(ctx, ref.ID)
		if err == nil {
			if est.EstimateP10 != nil && est.EstimateP50 != nil && est.EstimateP90 != nil {
				if v, perr := scoring.PERT(*est.EstimateP10, *est.EstimateP50, *est.EstimateP90); perr == nil {
					return v, nil
				}
			}
			if est.EstimateP50 != nil {
				return *est.EstimateP50, nil
			}
		} else if err != repo.ErrNotFound {
			return 0, err
		}
		s, err := e.Repo.GetStory(ctx, ref.ID)
		if err != nil {
			if err == repo.ErrNotFound {
				return defaultItemHours, nil
			}
			return 0, err
		}
		if s.EstimatedHours != nil {
			return float64(*s.EstimatedHours), nil
		}
	case "task":
		t, err := e.Repo.GetWorkTask(ctx, ref.ID)
		if err != nil {
			if err == repo.ErrNotFound {
				return defaultItemHours, nil
			}
			return 0, err
		}
		if t.EstimatedHours != nil {
			return float64(*t.EstimatedHours), nil
		}
	}
	return defaultItemHours, nil
}
