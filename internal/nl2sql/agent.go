package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/internal/sqlextract"
	"github.com/storechat/storechat/internal/sqlsafety"
	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// DefaultAgentMaxTurns bounds the reason/execute loop.
const DefaultAgentMaxTurns = 5

const agentSystemPrompt = `You are a data analyst working against a PostgreSQL e-commerce database.
Answer the user's question by running SQL and reading the results.

Use exactly this format:
Thought: your reasoning about what to query next
Action: sql_db_query
Action Input: one SELECT statement
Observation: (filled in by the system)

Repeat Thought/Action/Action Input as needed. When you know the answer, finish with:
Final Answer: the answer in plain language

Only SELECT statements are executed. Anything else is rejected.`

// Agent runs the iterative generation strategy: the model proposes SQL,
// we execute it, and the observation is fed back until the model commits
// to a final answer or the turn budget runs out. The caller bounds wall
// clock time through ctx.
type Agent struct {
	gen       contracts.Generator
	db        contracts.CommerceReader
	validator *sqlsafety.Validator
	extractor *sqlextract.Extractor
	schema    *SchemaContext
	model     string
	maxTurns  int
	rowLimit  int
}

// NewAgent wires an agent over the shared collaborators.
func NewAgent(gen contracts.Generator, db contracts.CommerceReader, validator *sqlsafety.Validator,
	extractor *sqlextract.Extractor, schema *SchemaContext, model string, maxTurns, rowLimit int) *Agent {
	if maxTurns <= 0 {
		maxTurns = DefaultAgentMaxTurns
	}
	return &Agent{
		gen: gen, db: db, validator: validator, extractor: extractor,
		schema: schema, model: model, maxTurns: maxTurns, rowLimit: rowLimit,
	}
}

// AgentOutcome is what a successful loop produced.
type AgentOutcome struct {
	SQL       string
	Result    *models.QueryResult
	FinalText string
	Turns     int
}

// Run executes the loop. A nil error means at least one SELECT ran
// successfully; FinalText may still be empty when the model never
// committed to prose.
func (a *Agent) Run(ctx context.Context, question string) (*AgentOutcome, error) {
	schemaCtx, err := a.schema.Render(ctx)
	if err != nil {
		return nil, err
	}

	messages := []models.Message{
		{Role: models.RoleUser, Content: schemaCtx + "\nQuestion: " + question},
	}

	outcome := &AgentOutcome{}
	for turn := 0; turn < a.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("agent loop cancelled: %w", err)
		}
		outcome.Turns = turn + 1

		result, err := a.gen.Generate(ctx, contracts.GenerateRequest{
			Model:       a.model,
			System:      agentSystemPrompt,
			Messages:    messages,
			Temperature: 0,
		})
		if err != nil {
			// Model output sometimes survives inside the error text.
			if sql, exErr := a.extractor.Extract(err.Error()); exErr == nil {
				if capped, res, runErr := a.execute(ctx, sql); runErr == nil {
					outcome.SQL, outcome.Result = capped, res
					return outcome, nil
				}
			}
			return nil, fmt.Errorf("agent turn %d: %w", turn+1, err)
		}

		output := result.Text
		messages = append(messages, models.Message{Role: models.RoleAssistant, Content: output})

		if final, ok := finalAnswer(output); ok {
			outcome.FinalText = final
			if outcome.SQL == "" {
				// Final answer without ever running SQL; try to salvage a
				// statement from the same output.
				if sql, err := a.extractor.Extract(output); err == nil {
					if capped, res, runErr := a.execute(ctx, sql); runErr == nil {
						outcome.SQL, outcome.Result = capped, res
					}
				}
			}
			if outcome.SQL == "" {
				// Partial outcome still carries the prose; the caller may
				// salvage it through inference.
				return outcome, fmt.Errorf("agent finished without executing SQL")
			}
			return outcome, nil
		}

		sql, err := a.extractor.Extract(output)
		if err != nil {
			messages = append(messages, observation("No SQL statement found. Provide one SELECT after 'Action Input:'."))
			continue
		}

		capped, res, err := a.execute(ctx, sql)
		if err != nil {
			log.Debug().Str("sql", sql).Err(err).Msg("agent SQL rejected")
			messages = append(messages, observation("Query failed: "+err.Error()))
			continue
		}

		outcome.SQL, outcome.Result = capped, res
		messages = append(messages, observation(preview(res)))
	}

	if outcome.SQL != "" {
		return outcome, nil
	}
	return outcome, fmt.Errorf("agent exhausted %d turns without a runnable query", a.maxTurns)
}

// execute applies the shared safety gate before touching the store and
// returns the statement as actually run, row cap included.
func (a *Agent) execute(ctx context.Context, sql string) (string, *models.QueryResult, error) {
	if err := a.validator.Safe(sql); err != nil {
		return "", nil, err
	}
	capped := a.validator.EnforceLimit(sql, a.rowLimit)
	res, err := a.db.ExecuteSelect(ctx, capped)
	return capped, res, err
}

func observation(text string) models.Message {
	return models.Message{Role: models.RoleUser, Content: "Observation: " + text}
}

func finalAnswer(output string) (string, bool) {
	lower := strings.ToLower(output)
	i := strings.Index(lower, "final answer:")
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(output[i+len("final answer:"):]), true
}

// preview renders the first rows of a result compactly for the model.
func preview(res *models.QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows. Columns: %s.", res.RowCount, strings.Join(res.Columns, ", "))
	max := 3
	if len(res.Rows) < max {
		max = len(res.Rows)
	}
	for _, row := range res.Rows[:max] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = asString(v)
		}
		b.WriteString(" [" + strings.Join(cells, ", ") + "]")
	}
	return b.String()
}
