package engine

import (
	"context"
	"database/sql"
	"sort"

	"planline/internal/ai"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
	"planline/internal/scoring"
)

// SetRICEScores records the RICE components for a story and computes
// the score.
func (e Engine) SetRICEScores(ctx context.Context, storyID int64, reach, impact, confidence, effort float64, actorID string) (domain.StoryEstimate, error) {
	score, err := scoring.RICE(reach, impact, confidence, effort)
	if err != nil {
		return domain.StoryEstimate{}, &ValidationError{Msg: err.Error()}
	}
	if _, err := e.Repo.GetStory(ctx, storyID); err != nil {
		return domain.StoryEstimate{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoryEstimate{}, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	if _, err := e.Repo.EnsureEstimateTx(ctx, tx, storyID, now); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := e.Repo.UpdateEstimateTx(ctx, tx, storyID, repo.EstimateUpdate{
		RICEReach:      &reach,
		RICEImpact:     &impact,
		RICEConfidence: &confidence,
		RICEEffort:     &effort,
		RICEScore:      &score,
	}, now); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := e.appendStoryEvent(ctx, tx, "estimate.rice_scored", storyID, actorID, events.EventPayload{"score": score}); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StoryEstimate{}, err
	}
	return e.Repo.GetEstimate(ctx, storyID)
}

// SetWSJFScores records the WSJF components for a story and computes
// the score.
func (e Engine) SetWSJFScores(ctx context.Context, storyID int64, businessValue, timeCriticality, riskReduction, jobSize float64, actorID string) (domain.StoryEstimate, error) {
	score, err := scoring.WSJF(businessValue, timeCriticality, riskReduction, jobSize)
	if err != nil {
		return domain.StoryEstimate{}, &ValidationError{Msg: err.Error()}
	}
	if _, err := e.Repo.GetStory(ctx, storyID); err != nil {
		return domain.StoryEstimate{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoryEstimate{}, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	if _, err := e.Repo.EnsureEstimateTx(ctx, tx, storyID, now); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := e.Repo.UpdateEstimateTx(ctx, tx, storyID, repo.EstimateUpdate{
		WSJFBusinessValue:   &businessValue,
		WSJFTimeCriticality: &timeCriticality,
		WSJFRiskReduction:   &riskReduction,
		WSJFJobSize:         &jobSize,
		WSJFScore:           &score,
	}, now); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := e.appendStoryEvent(ctx, tx, "estimate.wsjf_scored", storyID, actorID, events.EventPayload{"score": score}); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StoryEstimate{}, err
	}
	return e.Repo.GetEstimate(ctx, storyID)
}

// SetRangeEstimate records a manual three-point estimate for a story.
func (e Engine) SetRangeEstimate(ctx context.Context, storyID int64, p10, p50, p90 float64, actorID string) (domain.StoryEstimate, error) {
	if _, err := scoring.PERT(p10, p50, p90); err != nil {
		return domain.StoryEstimate{}, &ValidationError{Msg: err.Error()}
	}
	if _, err := e.Repo.GetStory(ctx, storyID); err != nil {
		return domain.StoryEstimate{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoryEstimate{}, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	if _, err := e.Repo.EnsureEstimateTx(ctx, tx, storyID, now); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := e.Repo.UpdateEstimateTx(ctx, tx, storyID, repo.EstimateUpdate{
		EstimateP10: &p10,
		EstimateP50: &p50,
		EstimateP90: &p90,
	}, now); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := e.appendStoryEvent(ctx, tx, "estimate.range_set", storyID, actorID, events.EventPayload{"p50": p50}); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StoryEstimate{}, err
	}
	return e.Repo.GetEstimate(ctx, storyID)
}

// GenerateEstimate asks the collaborator for a range estimate and
// stores it in the AI fields, leaving any manual estimate untouched.
func (e Engine) GenerateEstimate(ctx context.Context, storyID int64, actorID string) (domain.StoryEstimate, error) {
	s, err := e.Repo.GetStory(ctx, storyID)
	if err != nil {
		return domain.StoryEstimate{}, err
	}
	est, err := e.provider().EstimateStory(ctx, ai.StorySummary{
		Title:              s.Title,
		Description:        s.Description,
		AcceptanceCriteria: s.AcceptanceCriteria,
		StoryPoints:        s.StoryPoints,
	})
	if err != nil {
		return domain.StoryEstimate{}, &CollaboratorError{Op: "estimate story", Err: err}
	}
	if _, err := scoring.PERT(est.P10, est.P50, est.P90); err != nil {
		return domain.StoryEstimate{}, &CollaboratorError{Op: "estimate story", Err: err}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoryEstimate{}, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	if _, err := e.Repo.EnsureEstimateTx(ctx, tx, storyID, now); err != nil {
		return domain.StoryEstimate{}, err
	}
	upd := repo.EstimateUpdate{
		AIEstimateP10: &est.P10,
		AIEstimateP50: &est.P50,
		AIEstimateP90: &est.P90,
		AIConfidence:  &est.Confidence,
	}
	if est.Reasoning != "" {
		upd.AIReasoning = &est.Reasoning
	}
	if err := e.Repo.UpdateEstimateTx(ctx, tx, storyID, upd, now); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := e.appendStoryEvent(ctx, tx, "estimate.generated", storyID, actorID, events.EventPayload{"p50": est.P50}); err != nil {
		return domain.StoryEstimate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StoryEstimate{}, err
	}
	return e.Repo.GetEstimate(ctx, storyID)
}

// BacklogItem is one row of the prioritized backlog.
type BacklogItem struct {
	Story    domain.Story          `json:"story"`
	Estimate *domain.StoryEstimate `json:"estimate,omitempty"`
	Score    *float64              `json:"score,omitempty"`
}

// PrioritizedBacklog returns the project's stories ordered by the
// chosen scoring model, highest first. Unscored stories sort last;
// ties break on story id so the order is stable.
func (e Engine) PrioritizedBacklog(ctx context.Context, projectID int64, model string) ([]BacklogItem, error) {
	switch model {
	case "":
		model = e.Config.DefaultModel()
	case "rice", "wsjf":
	default:
		return nil, &ValidationError{Msg: "scoring model must be 'rice' or 'wsjf'"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	stories, err := e.Repo.ListStoriesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	estimates, err := e.Repo.ListEstimatesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	items := make([]BacklogItem, 0, len(stories))
	for _, s := range stories {
		item := BacklogItem{Story: s}
		if est, ok := estimates[s.ID]; ok {
			est := est
			item.Estimate = &est
			item.Score = est.PriorityScore(model)
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := items[i].Score, items[j].Score
		switch {
		case si != nil && sj != nil:
			if *si != *sj {
				return *si > *sj
			}
		case si != nil:
			return true
		case sj != nil:
			return false
		}
		return items[i].Story.ID < items[j].Story.ID
	})
	return items, nil
}

func (e Engine) appendStoryEvent(ctx context.Context, tx *sql.Tx, evtType string, storyID int64, actorID string, payload events.EventPayload) error {
	var projectID int64
	if err := tx.QueryRowContext(ctx, `SELECT e.project_id FROM stories s JOIN epics e ON e.id=s.epic_id WHERE s.id=?`, storyID).Scan(&projectID); err != nil {
		projectID = 0
	}
	return e.Events.Append(ctx, tx, evtType, projectID, "story", itoa(storyID), actorID, payload)
}
