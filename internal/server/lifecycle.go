package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/repo"
)

func resolvePhase(ctx context.Context, e engine.Engine, projectID int64, kind string) (domain.LifecyclePhase, huma.StatusError) {
	if _, ok := domain.PhaseOrder[kind]; !ok {
		return domain.LifecyclePhase{}, newAPIError(http.StatusBadRequest, "bad_request", "unknown phase "+kind, nil)
	}
	p, err := e.Repo.GetPhaseByKind(ctx, projectID, kind)
	if err != nil {
		return domain.LifecyclePhase{}, handleError(err)
	}
	return p, nil
}

func registerLifecycle(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "init-lifecycle",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/lifecycle/init",
		Summary:       "Create the six lifecycle phases",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct {
		Body []PhaseResponse `json:"body"`
	}, error) {
		phases, err := e.InitLifecyclePhases(ctx, input.ProjectID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PhaseResponse `json:"body"`
		}{Body: mapPhases(phases)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analyze-lifecycle",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/lifecycle/analyze",
		Summary:     "Generate phase task checklists from the PRD",
		Errors: []int{
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct {
		Body domain.LifecycleSummary `json:"body"`
	}, error) {
		sum, err := e.AnalyzeLifecycle(ctx, input.ProjectID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LifecycleSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lifecycle-summary",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/lifecycle",
		Summary:     "Lifecycle progress summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body domain.LifecycleSummary `json:"body"`
	}, error) {
		sum, err := e.LifecycleSummary(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LifecycleSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-lifecycle",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/lifecycle",
		Summary:     "Delete all lifecycle phases and their tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		if err := e.DeleteLifecycle(ctx, input.ProjectID, actorOrDefault(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPhases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-phases",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phases",
		Summary:     "List lifecycle phases",
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body []PhaseResponse `json:"body"`
	}, error) {
		phases, err := e.Repo.ListPhases(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PhaseResponse `json:"body"`
		}{Body: mapPhases(phases)}, nil
	})

	type phaseInput struct {
		ProjectID int64  `path:"project_id"`
		Phase     string `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ActorID   string `header:"X-Actor-Id"`
	}
	type phaseOutput struct {
		Body PhaseResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "start-phase",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/start",
		Summary:     "Start a phase",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *phaseInput) (*phaseOutput, error) {
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		res, err := e.StartPhase(ctx, p.ID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &phaseOutput{Body: phaseResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "override-phase",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/override",
		Summary:     "Start a phase out of sequence",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                `path:"project_id"`
		Phase     string               `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ActorID   string               `header:"X-Actor-Id"`
		Body      OverridePhaseRequest `json:"body"`
	}) (*phaseOutput, error) {
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		res, err := e.OverridePhase(ctx, p.ID, input.Body.Reason, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &phaseOutput{Body: phaseResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-phase",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/submit",
		Summary:     "Submit a phase for approval",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *phaseInput) (*phaseOutput, error) {
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		res, err := e.SubmitForApproval(ctx, p.ID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &phaseOutput{Body: phaseResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-phase",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/approve",
		Summary:     "Approve a pending phase",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64               `path:"project_id"`
		Phase     string              `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ActorID   string              `header:"X-Actor-Id"`
		Body      ApprovePhaseRequest `json:"body"`
	}) (*phaseOutput, error) {
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		res, err := e.ApprovePhase(ctx, p.ID, actorOrDefault(input.ActorID), input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &phaseOutput{Body: phaseResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-phase",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/reject",
		Summary:     "Reject a pending phase back to in progress",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64              `path:"project_id"`
		Phase     string             `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ActorID   string             `header:"X-Actor-Id"`
		Body      RejectPhaseRequest `json:"body"`
	}) (*phaseOutput, error) {
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		res, err := e.RejectApproval(ctx, p.ID, input.Body.Notes, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &phaseOutput{Body: phaseResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "skip-phase",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/skip",
		Summary:     "Skip a phase",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64            `path:"project_id"`
		Phase     string           `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ActorID   string           `header:"X-Actor-Id"`
		Body      SkipPhaseRequest `json:"body"`
	}) (*phaseOutput, error) {
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		res, err := e.SkipPhase(ctx, p.ID, input.Body.Reason, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &phaseOutput{Body: phaseResponse(res)}, nil
	})
}

func registerServiceTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-service-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phases/{phase}/tasks",
		Summary:     "List a phase's service tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		Phase     string `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
	}) (*struct {
		Body []domain.ServiceTask `json:"body"`
	}, error) {
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		tasks, err := e.Repo.ListServiceTasks(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ServiceTask `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-service-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/phases/{phase}/tasks",
		Summary:       "Add a service task to a phase",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                    `path:"project_id"`
		Phase     string                   `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ActorID   string                   `header:"X-Actor-Id"`
		Body      CreateServiceTaskRequest `json:"body"`
	}) (*struct {
		Body domain.ServiceTask `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		opts := engine.ServiceTaskCreate{
			Title:        input.Body.Title,
			Definition:   input.Body.Definition,
			Category:     input.Body.Category,
			Subcategory:  input.Body.Subcategory,
			DaysRequired: input.Body.DaysRequired,
			Owner:        input.Body.Owner,
			Team:         input.Body.Team,
			IsRequired:   input.Body.IsRequired,
			Notes:        input.Body.Notes,
		}
		t, err := e.CreateServiceTask(ctx, p.ID, opts, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ServiceTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-service-task",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/phases/{phase}/tasks/{id}",
		Summary:     "Update a service task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                    `path:"project_id"`
		Phase     string                   `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ID        int64                    `path:"id"`
		ActorID   string                   `header:"X-Actor-Id"`
		Body      UpdateServiceTaskRequest `json:"body"`
	}) (*struct {
		Body domain.ServiceTask `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		existing, err := e.Repo.GetServiceTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.PhaseID != p.ID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found in phase", nil)
		}
		upd := repo.ServiceTaskUpdate{
			Title:              input.Body.Title,
			Definition:         input.Body.Definition,
			Category:           input.Body.Category,
			Subcategory:        input.Body.Subcategory,
			Status:             input.Body.Status,
			DaysRequired:       input.Body.DaysRequired,
			TargetStartDate:    input.Body.TargetStartDate,
			TargetCompleteDate: input.Body.TargetCompleteDate,
			Owner:              input.Body.Owner,
			Team:               input.Body.Team,
			Notes:              input.Body.Notes,
			CompletionNotes:    input.Body.CompletionNotes,
		}
		t, err := e.UpdateServiceTask(ctx, input.ID, upd, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ServiceTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-service-task",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/tasks/{id}/link",
		Summary:     "Link a service task to backlog work",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                  `path:"project_id"`
		Phase     string                 `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ID        int64                  `path:"id"`
		ActorID   string                 `header:"X-Actor-Id"`
		Body      LinkServiceTaskRequest `json:"body"`
	}) (*struct {
		Body domain.ServiceTask `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		existing, err := e.Repo.GetServiceTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.PhaseID != p.ID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found in phase", nil)
		}
		t, err := e.LinkServiceTask(ctx, input.ID, input.Body.EpicID, input.Body.StoryID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ServiceTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-service-task",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/phases/{phase}/tasks/{id}",
		Summary:     "Delete a service task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		Phase     string `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ID        int64  `path:"id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		existing, err := e.Repo.GetServiceTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.PhaseID != p.ID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found in phase", nil)
		}
		if err := e.DeleteServiceTask(ctx, input.ID, actorOrDefault(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-task-status",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/tasks/bulk-status",
		Summary:     "Set the status of several service tasks at once",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                 `path:"project_id"`
		Phase     string                `path:"phase" enum:"concept,define,plan,develop,launch,sustain"`
		ActorID   string                `header:"X-Actor-Id"`
		Body      BulkTaskStatusRequest `json:"body"`
	}) (*struct {
		Body BulkTaskStatusResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, apiErr := resolvePhase(ctx, e, input.ProjectID, input.Phase)
		if apiErr != nil {
			return nil, apiErr
		}
		updated, err := e.BulkUpdateTaskStatus(ctx, p.ID, input.Body.TaskIDs, input.Body.Status, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BulkTaskStatusResponse `json:"body"`
		}{Body: BulkTaskStatusResponse{Updated: updated}}, nil
	})
}
