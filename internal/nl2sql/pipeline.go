// Package nl2sql turns natural-language data questions into executed,
// validated SQL and a readable answer. Strategies escalate in cost:
// template fast path for trivially common shapes, then an agent loop
// (or the multi-step enhanced variant for hard questions), then direct
// single-shot generation, then the template table once more as a net.
// Failures downgrade to the next strategy; nothing here ever surfaces a
// raw database error to the user.
package nl2sql

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/internal/complexity"
	"github.com/storechat/storechat/internal/format"
	"github.com/storechat/storechat/internal/sqlextract"
	"github.com/storechat/storechat/internal/sqlsafety"
	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// DefaultAgentTimeout bounds one agent invocation's wall clock time.
const DefaultAgentTimeout = 30 * time.Second

// dbKeywords gate whether a question enters the pipeline at all.
var dbKeywords = []string{
	"customer", "customers", "product", "products", "order", "orders",
	"sale", "sales", "revenue", "inventory", "stock", "category", "categories",
	"count", "how many", "list", "show", "total", "amount", "money",
	"database", "table", "data", "record", "records",
}

// simplePatterns route a question straight to the template table without
// paying for generation. The list mirrors the template triggers.
var simplePatterns = []string{
	"total revenue", "total sales", "sum of orders", "revenue from orders",
	"how many customers", "how many orders", "how many products",
	"count of customers", "count of orders", "count of products",
	"number of customers", "number of orders", "number of products",
	"average order", "avg order", "mean order",
	"list all products", "show all products", "best selling product",
	"top selling product", "most popular product", "highest selling product",
	"product with most sales", "best performing product",
	"list all customers", "show all customers", "top customer",
	"best customer", "customer with most orders", "biggest customer",
	"customer who spent the most", "highest spending customer",
	"largest order", "biggest order", "highest order", "order with highest total",
	"most expensive order",
	"products by category", "category breakdown",
	"recent orders", "latest orders", "newest orders",
	"most expensive product", "cheapest product",
}

// Options tune pipeline behavior.
type Options struct {
	Model          string
	AgentTimeout   time.Duration
	AgentMaxTurns  int
	RefineAttempts int
	RowLimit       int
}

// Pipeline is the NL2SQL resolution state machine.
type Pipeline struct {
	db         contracts.CommerceReader
	validator  *sqlsafety.Validator
	extractor  *sqlextract.Extractor
	formatter  *format.Formatter
	classifier *complexity.Classifier
	fallback   *FallbackResolver
	agent      *Agent
	direct     *DirectTranslator
	enhanced   *Enhanced
	opts       Options
}

// New wires a pipeline over the store and generator.
func New(db contracts.CommerceReader, gen contracts.Generator, opts Options) *Pipeline {
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = DefaultAgentTimeout
	}
	if opts.RowLimit <= 0 {
		opts.RowLimit = sqlsafety.DefaultRowLimit
	}

	p := &Pipeline{
		db:         db,
		validator:  sqlsafety.New(),
		extractor:  sqlextract.New(),
		formatter:  format.New(),
		classifier: complexity.New(),
		fallback:   NewFallbackResolver(db),
		opts:       opts,
	}
	schema := NewSchemaContext(db)
	p.agent = NewAgent(gen, db, p.validator, p.extractor, schema, opts.Model, opts.AgentMaxTurns, opts.RowLimit)
	p.direct = NewDirectTranslator(gen, schema, opts.Model)
	p.enhanced = NewEnhanced(gen, schema, opts.Model, opts.RefineAttempts, p.execute, p.extractor.Extract)
	return p
}

// IsDatabaseQuestion is the keyword gate deciding whether Answer applies.
func (p *Pipeline) IsDatabaseQuestion(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range dbKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// isSimpleQuestion reports whether the template table can answer without
// generation.
func isSimpleQuestion(question string) bool {
	q := strings.ToLower(question)
	for _, pat := range simplePatterns {
		if strings.Contains(q, pat) {
			return true
		}
	}
	return false
}

// Answer resolves a question end to end. It returns nil when the question
// is not a database question (the caller routes elsewhere) and otherwise
// always a resolution, even if only the generic help answer.
func (p *Pipeline) Answer(ctx context.Context, question string) *models.SQLResolution {
	if !p.IsDatabaseQuestion(question) {
		return nil
	}

	// Fast path: common shapes skip generation entirely.
	if isSimpleQuestion(question) {
		if res := p.fallback.Resolve(ctx, question); res.Resolved {
			return res
		}
	}

	score := p.classifier.Classify(question)
	log.Info().Str("question", question).Int("score", score.Score).
		Str("level", string(score.Level)).Msg("resolving database question")

	var res *models.SQLResolution
	if complexity.Enhanced(score.Level) {
		res = p.runEnhanced(ctx, question)
	} else {
		res = p.runStandard(ctx, question)
	}
	if res != nil {
		return res
	}
	return p.fallback.Resolve(ctx, question)
}

// runStandard is the agent-then-direct chain. A nil return means fall
// through to the pattern table.
func (p *Pipeline) runStandard(ctx context.Context, question string) *models.SQLResolution {
	if res := p.runAgent(ctx, question); res != nil {
		return res
	}

	raw, err := p.direct.Translate(ctx, question)
	if err != nil {
		log.Warn().Err(err).Msg("direct generation failed")
		return nil
	}
	sql, err := p.extractor.Extract(raw)
	if err != nil {
		log.Debug().Err(err).Msg("no SQL in direct output")
		return nil
	}
	capped, result, err := p.execute(ctx, sql)
	if err != nil {
		log.Warn().Str("sql", sql).Err(err).Msg("direct SQL rejected")
		return nil
	}
	return p.compose(question, capped, result, models.StrategyDirect, 1)
}

// runAgent invokes the bounded agent loop. The deadline unwinds the
// in-flight generation call; a timeout is a normal downgrade, not an error.
func (p *Pipeline) runAgent(ctx context.Context, question string) *models.SQLResolution {
	agentCtx, cancel := context.WithTimeout(ctx, p.opts.AgentTimeout)
	defer cancel()

	outcome, err := p.agent.Run(agentCtx, question)
	if err != nil {
		log.Warn().Err(err).Msg("agent strategy failed")
		// Last resort: a count stated in prose for a how-many question.
		if outcome == nil {
			return nil
		}
		if sql, ok := p.extractor.Infer(question, outcome.FinalText); ok {
			if capped, result, runErr := p.execute(ctx, sql); runErr == nil {
				return p.compose(question, capped, result, models.StrategyAgent, outcome.Turns)
			}
		}
		return nil
	}

	res := p.compose(question, outcome.SQL, outcome.Result, models.StrategyAgent, outcome.Turns)
	if outcome.FinalText != "" {
		res.Answer = outcome.FinalText
	}
	return res
}

// runEnhanced is the multi-step chain for hard questions, with one
// standard pass as its own fallback.
func (p *Pipeline) runEnhanced(ctx context.Context, question string) *models.SQLResolution {
	sql, result, err := p.enhanced.Run(ctx, question)
	if err == nil {
		return p.compose(question, sql, result, models.StrategyAgent, p.opts.RefineAttempts)
	}
	log.Warn().Err(err).Msg("enhanced strategy failed, trying standard pass")
	return p.runStandard(ctx, question)
}

// execute is the single execution gate: validate, cap rows, run. It
// returns the statement as actually executed.
func (p *Pipeline) execute(ctx context.Context, sql string) (string, *models.QueryResult, error) {
	if err := p.validator.Safe(sql); err != nil {
		return "", nil, err
	}
	capped := p.validator.EnforceLimit(sql, p.opts.RowLimit)
	res, err := p.db.ExecuteSelect(ctx, capped)
	return capped, res, err
}

// compose renders the executed result into the final resolution. The table
// always reflects exactly the rows that were read; no re-querying.
func (p *Pipeline) compose(question, sql string, result *models.QueryResult, strategy string, attempts int) *models.SQLResolution {
	res := &models.SQLResolution{
		SQL:      sql,
		Strategy: strategy,
		Resolved: true,
		Result:   result,
		Attempts: attempts,
	}
	if _, ok := result.SingleValue(); ok {
		res.Answer = p.formatter.Sentence(question, result)
	} else {
		res.Table = p.formatter.Table(result.Columns, result.Rows)
		res.Answer = "Here is what I found:\n\n" + res.Table
	}
	return res
}
