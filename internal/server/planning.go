package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/repo"
)

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-dependency",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/dependencies",
		Summary:       "Create a dependency edge",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                   `path:"project_id"`
		ActorID   string                  `header:"X-Actor-Id"`
		Body      CreateDependencyRequest `json:"body"`
	}) (*struct {
		Body domain.Dependency `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.DependencyCreate{
			SourceType:     input.Body.SourceType,
			SourceID:       input.Body.SourceID,
			TargetType:     input.Body.TargetType,
			TargetID:       input.Body.TargetID,
			DependencyType: input.Body.DependencyType,
			Notes:          input.Body.Notes,
		}
		d, err := e.CreateDependency(ctx, input.ProjectID, opts, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dependency `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/dependencies",
		Summary:     "List dependency edges",
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body []domain.Dependency `json:"body"`
	}, error) {
		items, err := e.Repo.ListDependencies(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Dependency `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-dependency",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/dependencies/{id}",
		Summary:     "Update a dependency edge",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                   `path:"project_id"`
		ID        int64                   `path:"id"`
		ActorID   string                  `header:"X-Actor-Id"`
		Body      UpdateDependencyRequest `json:"body"`
	}) (*struct {
		Body domain.Dependency `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		existing, err := e.Repo.GetDependency(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "dependency not found in project", nil)
		}
		upd := repo.DependencyUpdate{
			DependencyType: input.Body.DependencyType,
			Status:         input.Body.Status,
			Notes:          input.Body.Notes,
		}
		d, err := e.UpdateDependency(ctx, input.ID, upd, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dependency `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-dependency",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/dependencies/{id}",
		Summary:     "Delete a dependency edge",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		ID        int64  `path:"id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		existing, err := e.Repo.GetDependency(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "dependency not found in project", nil)
		}
		if err := e.DeleteDependency(ctx, input.ID, actorOrDefault(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "infer-dependencies",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/dependencies/infer",
		Summary:     "Infer dependency edges from item descriptions",
		Errors: []int{
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct {
		Body []domain.Dependency `json:"body"`
	}, error) {
		items, err := e.InferDependencies(ctx, input.ProjectID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Dependency `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "critical-path",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/critical-path",
		Summary:     "Longest-duration chain through the dependency graph",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body CriticalPathResponse `json:"body"`
	}, error) {
		path, err := e.CriticalPath(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := CriticalPathResponse{Path: path}
		if len(path) > 0 {
			resp.TotalDuration = path[len(path)-1].TotalDuration
		}
		if resp.Path == nil {
			resp.Path = []domain.PathItem{}
		}
		return &struct {
			Body CriticalPathResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDecisions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-decision",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/decisions",
		Summary:       "Record a decision",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                 `path:"project_id"`
		ActorID   string                `header:"X-Actor-Id"`
		Body      CreateDecisionRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.DecisionCreate{
			Title:        input.Body.Title,
			Context:      input.Body.Context,
			Decision:     input.Body.Decision,
			Rationale:    input.Body.Rationale,
			Consequences: input.Body.Consequences,
			Maker:        input.Body.Maker,
		}
		d, err := e.CreateDecision(ctx, input.ProjectID, opts, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/decisions",
		Summary:     "List decisions",
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body []DecisionResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListDecisions(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DecisionResponse `json:"body"`
		}{Body: mapDecisions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-decision-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/decisions/{id}/status",
		Summary:     "Change a decision's status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                 `path:"project_id"`
		ID        int64                 `path:"id"`
		ActorID   string                `header:"X-Actor-Id"`
		Body      DecisionStatusRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		existing, err := e.Repo.GetDecision(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "decision not found in project", nil)
		}
		d, err := e.SetDecisionStatus(ctx, input.ID, input.Body.Status, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})
}

func registerAssumptions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assumption",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/assumptions",
		Summary:       "Record an assumption",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                   `path:"project_id"`
		ActorID   string                  `header:"X-Actor-Id"`
		Body      CreateAssumptionRequest `json:"body"`
	}) (*struct {
		Body domain.Assumption `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.AssumptionCreate{
			Assumption:       input.Body.Assumption,
			Context:          input.Body.Context,
			ImpactIfWrong:    input.Body.ImpactIfWrong,
			RiskLevel:        input.Body.RiskLevel,
			ValidationMethod: input.Body.ValidationMethod,
			ValidationOwner:  input.Body.ValidationOwner,
		}
		a, err := e.CreateAssumption(ctx, input.ProjectID, opts, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Assumption `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assumptions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/assumptions",
		Summary:     "List assumptions",
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body []domain.Assumption `json:"body"`
	}, error) {
		items, err := e.Repo.ListAssumptions(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Assumption `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-assumption",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/assumptions/{id}/validate",
		Summary:     "Mark an assumption validated or invalidated",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                     `path:"project_id"`
		ID        int64                     `path:"id"`
		ActorID   string                    `header:"X-Actor-Id"`
		Body      ValidateAssumptionRequest `json:"body"`
	}) (*struct {
		Body domain.Assumption `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		existing, err := e.Repo.GetAssumption(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "assumption not found in project", nil)
		}
		a, err := e.ValidateAssumption(ctx, input.ID, input.Body.Status, input.Body.Result, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Assumption `json:"body"`
		}{Body: a}, nil
	})
}

func registerEstimates(api huma.API, e engine.Engine) {
	type estimateOutput struct {
		Body domain.StoryEstimate `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-estimate",
		Method:      http.MethodGet,
		Path:        "/stories/{story_id}/estimate",
		Summary:     "Get a story's estimate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StoryID int64 `path:"story_id"`
	}) (*estimateOutput, error) {
		est, err := e.Repo.GetEstimate(ctx, input.StoryID)
		if err != nil {
			return nil, handleError(err)
		}
		return &estimateOutput{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "score-rice",
		Method:      http.MethodPut,
		Path:        "/stories/{story_id}/estimate/rice",
		Summary:     "Set RICE scoring components",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		StoryID int64            `path:"story_id"`
		ActorID string           `header:"X-Actor-Id"`
		Body    RICEScoreRequest `json:"body"`
	}) (*estimateOutput, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		est, err := e.SetRICEScores(ctx, input.StoryID, input.Body.Reach, input.Body.Impact, input.Body.Confidence, input.Body.Effort, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &estimateOutput{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "score-wsjf",
		Method:      http.MethodPut,
		Path:        "/stories/{story_id}/estimate/wsjf",
		Summary:     "Set WSJF scoring components",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		StoryID int64            `path:"story_id"`
		ActorID string           `header:"X-Actor-Id"`
		Body    WSJFScoreRequest `json:"body"`
	}) (*estimateOutput, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		est, err := e.SetWSJFScores(ctx, input.StoryID, input.Body.BusinessValue, input.Body.TimeCriticality, input.Body.RiskReduction, input.Body.JobSize, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &estimateOutput{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-range-estimate",
		Method:      http.MethodPut,
		Path:        "/stories/{story_id}/estimate/range",
		Summary:     "Set a three-point range estimate",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		StoryID int64                `path:"story_id"`
		ActorID string               `header:"X-Actor-Id"`
		Body    RangeEstimateRequest `json:"body"`
	}) (*estimateOutput, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		est, err := e.SetRangeEstimate(ctx, input.StoryID, input.Body.P10, input.Body.P50, input.Body.P90, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &estimateOutput{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-estimate",
		Method:      http.MethodPost,
		Path:        "/stories/{story_id}/estimate/generate",
		Summary:     "Generate an estimate for a story",
		Errors: []int{
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		StoryID int64  `path:"story_id"`
		ActorID string `header:"X-Actor-Id"`
	}) (*estimateOutput, error) {
		est, err := e.GenerateEstimate(ctx, input.StoryID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &estimateOutput{Body: est}, nil
	})
}
