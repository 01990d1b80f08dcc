package nl2sql

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// DefaultRefineAttempts is how many generate/validate/refine rounds the
// enhanced strategy gets before giving up.
const DefaultRefineAttempts = 3

const analysisPrompt = `You are an expert business analyst and SQL specialist. Analyze this business intelligence question:

%s

Describe:
1. What data is needed and from which tables
2. The aggregations, joins and groupings required
3. What makes this question complex (CTEs, window functions, multi-step logic)`

const planningPrompt = `Based on the analysis below, write a short numbered plan for building one PostgreSQL SELECT statement that answers the question.

Question: %s

Analysis:
%s`

const generatePrompt = `Follow the plan and write the SQL. Return ONLY SQL, no markdown and no explanation.

Question: %s

Plan:
%s%s`

// Enhanced is the multi-step strategy for high-complexity questions:
// an analysis pass, a planning pass, then bounded generate/validate/refine
// iterations against the live store.
type Enhanced struct {
	gen      contracts.Generator
	schema   *SchemaContext
	model    string
	attempts int
	execute  func(ctx context.Context, sql string) (string, *models.QueryResult, error)
	extract  func(raw string) (string, error)
}

// NewEnhanced builds the strategy around the shared execute/extract gates.
func NewEnhanced(gen contracts.Generator, schema *SchemaContext, model string, attempts int,
	execute func(context.Context, string) (string, *models.QueryResult, error),
	extract func(string) (string, error)) *Enhanced {
	if attempts <= 0 {
		attempts = DefaultRefineAttempts
	}
	return &Enhanced{gen: gen, schema: schema, model: model, attempts: attempts, execute: execute, extract: extract}
}

// Run walks analysis, planning and refinement. A nil error means a SELECT
// executed successfully.
func (e *Enhanced) Run(ctx context.Context, question string) (string, *models.QueryResult, error) {
	schemaCtx, err := e.schema.Render(ctx)
	if err != nil {
		return "", nil, err
	}

	analysis, err := e.complete(ctx, schemaCtx, fmt.Sprintf(analysisPrompt, question))
	if err != nil {
		return "", nil, fmt.Errorf("analysis pass: %w", err)
	}

	plan, err := e.complete(ctx, schemaCtx, fmt.Sprintf(planningPrompt, question, analysis))
	if err != nil {
		return "", nil, fmt.Errorf("planning pass: %w", err)
	}

	feedback := ""
	for attempt := 1; attempt <= e.attempts; attempt++ {
		raw, err := e.complete(ctx, schemaCtx, fmt.Sprintf(generatePrompt, question, plan, feedback))
		if err != nil {
			return "", nil, fmt.Errorf("generation attempt %d: %w", attempt, err)
		}

		sql, err := e.extract(raw)
		if err != nil {
			feedback = refineNote(attempt, "output contained no usable SQL: "+err.Error())
			continue
		}

		capped, res, err := e.execute(ctx, sql)
		if err != nil {
			log.Debug().Int("attempt", attempt).Str("sql", sql).Err(err).Msg("refining rejected SQL")
			feedback = refineNote(attempt, fmt.Sprintf("the statement\n%s\nfailed with: %s", sql, err.Error()))
			continue
		}
		return capped, res, nil
	}
	return "", nil, fmt.Errorf("enhanced strategy exhausted %d attempts", e.attempts)
}

func (e *Enhanced) complete(ctx context.Context, system, prompt string) (string, error) {
	result, err := e.gen.Generate(ctx, contracts.GenerateRequest{
		Model:       e.model,
		System:      system,
		Messages:    []models.Message{{Role: models.RoleUser, Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func refineNote(attempt int, problem string) string {
	return fmt.Sprintf("\n\nPrevious attempt %d failed, fix it: %s", attempt, problem)
}
