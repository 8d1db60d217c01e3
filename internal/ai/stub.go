package ai

import "context"

// StubProvider returns canned plans for development and testing; no
// network calls, deterministic output.
type StubProvider struct{}

func intp(v int) *int          { return &v }
func floatp(v float64) *float64 { return &v }

func (StubProvider) GenerateBacklog(ctx context.Context, prd string) (Backlog, error) {
	return Backlog{Epics: []EpicPlan{
		{
			Title:       "Sample Epic",
			Description: "This is a sample epic generated by the stub provider.",
			Priority:    "high",
			Stories: []StoryPlan{
				{
					Title:              "Sample Story 1",
					Description:        "As a user, I want sample functionality.",
					AcceptanceCriteria: "- Criteria 1\n- Criteria 2",
					StoryPoints:        intp(5),
					EstimatedHours:     intp(8),
					Priority:           "high",
					Tasks: []TaskPlan{
						{Title: "Implement feature", Description: "Implement the core feature", EstimatedHours: intp(4)},
						{Title: "Write tests", Description: "Write unit tests", EstimatedHours: intp(2)},
						{Title: "Documentation", Description: "Update documentation", EstimatedHours: intp(2)},
					},
				},
				{
					Title:              "Sample Story 2",
					Description:        "As a user, I want more sample functionality.",
					AcceptanceCriteria: "- Criteria A\n- Criteria B",
					StoryPoints:        intp(3),
					EstimatedHours:     intp(5),
					Priority:           "medium",
					Tasks: []TaskPlan{
						{Title: "Design component", Description: "Design the UI component", EstimatedHours: intp(2)},
						{Title: "Implement component", Description: "Build the component", EstimatedHours: intp(3)},
					},
				},
			},
		},
	}}, nil
}

func (StubProvider) GenerateLifecycleTasks(ctx context.Context, projectName, prd string) ([]PhasePlan, error) {
	return []PhasePlan{
		{Phase: "concept", Tasks: []ServiceTaskPlan{
			{Title: "Market Opportunity Analysis", Definition: "Conduct comprehensive market analysis to validate opportunity size and competitive landscape", Category: "Product Management", DaysRequired: intp(5), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Essential for business case validation"},
			{Title: "Business Case Development", Definition: "Create business case including ROI, investment requirements, and revenue projections", Category: "Finance & Pricing", DaysRequired: intp(7), IsRequired: true, Confidence: floatp(0.95), Reasoning: "Required for executive approval"},
			{Title: "Customer Discovery Interviews", Definition: "Conduct interviews with target customers to validate problem and solution fit", Category: "Product Management", DaysRequired: intp(7), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Voice of customer input"},
			{Title: "Technical Feasibility Assessment", Definition: "Assess technical feasibility and identify major technical risks", Category: "Engineering & Technical", DaysRequired: intp(5), IsRequired: true, Confidence: floatp(0.85), Reasoning: "Validate buildability"},
			{Title: "Concept Phase Gate Preparation", Definition: "Prepare materials for concept phase exit review", Category: "Product Management", DaysRequired: intp(2), IsRequired: true, Confidence: floatp(0.95), Reasoning: "Phase exit requirement"},
		}},
		{Phase: "define", Tasks: []ServiceTaskPlan{
			{Title: "Solution Architecture Design", Definition: "Define technical architecture and integration requirements", Category: "Engineering & Technical", DaysRequired: intp(10), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Foundation for development"},
			{Title: "Detailed Requirements Documentation", Definition: "Document functional and non-functional requirements", Category: "Product Management", DaysRequired: intp(8), IsRequired: true, Confidence: floatp(0.95), Reasoning: "Development input"},
			{Title: "Pricing Model Finalization", Definition: "Finalize pricing structure, tiers, and terms", Category: "Finance & Pricing", DaysRequired: intp(7), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Revenue model"},
			{Title: "Security Requirements Definition", Definition: "Define security requirements and compliance certifications needed", Category: "Engineering & Technical", DaysRequired: intp(5), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Security compliance"},
			{Title: "Define Phase Gate Preparation", Definition: "Prepare materials for define phase exit review", Category: "Product Management", DaysRequired: intp(2), IsRequired: true, Confidence: floatp(0.95), Reasoning: "Phase exit requirement"},
		}},
		{Phase: "plan", Tasks: []ServiceTaskPlan{
			{Title: "Go-to-Market Strategy", Definition: "Develop comprehensive GTM strategy including channels and timing", Category: "Marketing & Communications", DaysRequired: intp(10), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Launch success"},
			{Title: "Sales Enablement Plan", Definition: "Create sales training and enablement plan", Category: "Sales Enablement", DaysRequired: intp(7), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Sales readiness"},
			{Title: "Development Sprint Planning", Definition: "Plan development sprints and milestones", Category: "Engineering & Technical", DaysRequired: intp(5), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Development timeline"},
			{Title: "Resource Staffing Plan", Definition: "Develop detailed staffing plan with hiring timeline", Category: "Operations & Support", DaysRequired: intp(6), IsRequired: true, Confidence: floatp(0.85), Reasoning: "Delivery capacity"},
		}},
		{Phase: "develop", Tasks: []ServiceTaskPlan{
			{Title: "Core Service Development", Definition: "Build the core service capabilities", Category: "Engineering & Technical", DaysRequired: intp(30), IsRequired: true, Confidence: floatp(0.95), Reasoning: "Primary deliverable"},
			{Title: "Quality Assurance Testing", Definition: "Execute QA test plans across functionality and integrations", Category: "Quality & Certification", DaysRequired: intp(10), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Quality gate"},
			{Title: "Training Content Development", Definition: "Develop training materials for internal teams and customers", Category: "Training & Documentation", DaysRequired: intp(10), IsRequired: true, Confidence: floatp(0.85), Reasoning: "Enablement"},
			{Title: "Pilot Customer Program", Definition: "Run pilot program with early customers", Category: "Product Management", DaysRequired: intp(15), IsRequired: true, Confidence: floatp(0.85), Reasoning: "Validation before launch"},
		}},
		{Phase: "launch", Tasks: []ServiceTaskPlan{
			{Title: "Production Environment Deployment", Definition: "Deploy to production environment", Category: "Engineering & Technical", DaysRequired: intp(3), IsRequired: true, Confidence: floatp(0.95), Reasoning: "Go-live"},
			{Title: "Marketing Launch Campaign", Definition: "Execute launch marketing campaign", Category: "Marketing & Communications", DaysRequired: intp(10), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Demand generation"},
			{Title: "Launch Readiness Review", Definition: "Conduct final launch readiness review", Category: "Product Management", DaysRequired: intp(1), IsRequired: true, Confidence: floatp(0.95), Reasoning: "Go/no-go decision"},
			{Title: "Post-Launch Monitoring", Definition: "Intensive monitoring during launch period", Category: "Operations & Support", DaysRequired: intp(7), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Launch stability"},
		}},
		{Phase: "sustain", Tasks: []ServiceTaskPlan{
			{Title: "Performance KPI Tracking", Definition: "Establish and track performance KPIs", Category: "Operations & Support", DaysRequired: intp(5), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Performance management"},
			{Title: "Customer Feedback Loop", Definition: "Establish systematic customer feedback collection", Category: "Product Management", DaysRequired: intp(5), IsRequired: true, Confidence: floatp(0.9), Reasoning: "Continuous improvement"},
			{Title: "Roadmap Planning", Definition: "Plan future enhancements and roadmap", Category: "Product Management", DaysRequired: intp(7), IsRequired: true, Confidence: floatp(0.85), Reasoning: "Future development"},
		}},
	}, nil
}

func (StubProvider) InferDependencies(ctx context.Context, items []ItemSummary) ([]InferredEdge, error) {
	// Propose a chain over the first two stories when present, matching
	// the shape a live model returns.
	var stories []ItemSummary
	for _, it := range items {
		if it.Type == "story" {
			stories = append(stories, it)
		}
	}
	if len(stories) < 2 {
		return nil, nil
	}
	return []InferredEdge{
		{
			SourceType:     "story",
			SourceID:       stories[1].ID,
			TargetType:     "story",
			TargetID:       stories[0].ID,
			DependencyType: "depends_on",
			Confidence:     0.85,
			Reason:         "The second story builds on functionality delivered by the first",
		},
	}, nil
}

func (StubProvider) ExtractPlanning(ctx context.Context, prd string) (PlanningExtract, error) {
	return PlanningExtract{
		Decisions: []DecisionPlan{
			{
				Title:        "Use PostgreSQL for primary database",
				Context:      "Need to choose a database for storing project data",
				Decision:     "Use PostgreSQL as the primary database",
				Rationale:    "PostgreSQL provides robust ACID compliance, JSON support, and scales well",
				Alternatives: []string{"MySQL", "MongoDB", "SQLite"},
				Confidence:   0.9,
			},
		},
		Assumptions: []AssumptionPlan{
			{
				Assumption:    "Team has experience with React",
				Context:       "Frontend technology choice",
				ImpactIfWrong: "Would need additional training time, potentially 2-4 weeks",
				RiskLevel:     "medium",
				Confidence:    0.8,
			},
			{
				Assumption:    "API response times will be under 200ms",
				Context:       "Performance requirements",
				ImpactIfWrong: "May need to add caching layer or optimize queries",
				RiskLevel:     "high",
				Confidence:    0.75,
			},
		},
	}, nil
}

func (StubProvider) EstimateStory(ctx context.Context, story StorySummary) (Estimate, error) {
	return Estimate{
		P10:        4,
		P50:        8,
		P90:        16,
		Confidence: 0.7,
		Reasoning:  "Based on typical feature complexity. P10 assumes no blockers, P50 standard integration work, P90 buffers for unexpected complexity.",
	}, nil
}
