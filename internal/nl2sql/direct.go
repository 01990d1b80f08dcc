package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

const directSystemPrompt = `You are a PostgreSQL expert for an e-commerce database.
Translate the user's question into a single SELECT statement.
Return ONLY SQL. No markdown, no explanation.
Add LIMIT 100 unless the user asks otherwise.`

// DirectTranslator is the single-shot generation strategy: one completion
// with schema context, no iteration. Cheaper than the agent loop, good
// enough for most simple questions.
type DirectTranslator struct {
	gen    contracts.Generator
	schema *SchemaContext
	model  string
}

// NewDirectTranslator returns a translator using gen.
func NewDirectTranslator(gen contracts.Generator, schema *SchemaContext, model string) *DirectTranslator {
	return &DirectTranslator{gen: gen, schema: schema, model: model}
}

// Translate produces raw model output for the question. Extraction and
// validation stay with the caller so every strategy shares one gate.
func (t *DirectTranslator) Translate(ctx context.Context, question string) (string, error) {
	schemaCtx, err := t.schema.Render(ctx)
	if err != nil {
		return "", err
	}

	var prompt strings.Builder
	prompt.WriteString(schemaCtx)
	if ex := Examples(question); ex != "" {
		prompt.WriteString("\n")
		prompt.WriteString(ex)
	}
	fmt.Fprintf(&prompt, "\nQuestion: %s\nSQL:", question)

	result, err := t.gen.Generate(ctx, contracts.GenerateRequest{
		Model:       t.model,
		System:      directSystemPrompt,
		Messages:    []models.Message{{Role: models.RoleUser, Content: prompt.String()}},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("direct translation: %w", err)
	}
	return result.Text, nil
}
