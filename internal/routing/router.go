// Package routing decides which answer strategy serves a chat message.
package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/pkg/models"
)

// SQLAnswerer is the NL2SQL pipeline as the router sees it. A nil result
// means the question is not a database question at all.
type SQLAnswerer interface {
	Answer(ctx context.Context, question string) *models.SQLResolution
}

// Decision is the routing outcome for one question. Instruction is the
// system prompt handed to the generator; Resolution is set only on the
// database route.
type Decision struct {
	Kind        models.RouteKind
	Instruction string
	Resolution  *models.SQLResolution
}

// Router classifies questions and dispatches the database path.
type Router struct {
	sql SQLAnswerer
}

func New(sql SQLAnswerer) *Router {
	return &Router{sql: sql}
}

// BaseInstruction is the default persona when no other context applies.
const BaseInstruction = `You are a helpful AI assistant for an e-commerce business. Provide clear, accurate, and helpful responses to user questions based on your training data and general knowledge. Format your responses using markdown. If you don't know a specific fact, say so plainly instead of guessing.`

const conceptualInstruction = `You are a helpful AI assistant. The user is asking a conceptual or definitional question. Explain the concept clearly and accurately from general knowledge. Do not invent specific figures about this business.`

const businessInstruction = `You are an experienced e-commerce business analyst. The user is asking a business question, but no specific data is available for it. Give useful general guidance and best practices, and state clearly that you are not quoting live numbers from their database.`

// Route applies the precedence rules: a successful database answer beats
// everything except conceptual phrasing, and conceptual phrasing only wins
// when the database path found nothing usable.
func (r *Router) Route(ctx context.Context, question string) *Decision {
	res := r.sql.Answer(ctx, question)
	dbAnswered := res != nil && res.Resolved

	switch {
	case isConceptual(question) && !dbAnswered:
		log.Debug().Str("route", string(models.RouteConceptual)).Msg("Question routed")
		return &Decision{Kind: models.RouteConceptual, Instruction: conceptualInstruction}

	case dbAnswered:
		log.Debug().Str("route", string(models.RouteDatabase)).Str("strategy", res.Strategy).Msg("Question routed")
		return &Decision{
			Kind:        models.RouteDatabase,
			Instruction: databaseInstruction(res),
			Resolution:  res,
		}

	case isBusiness(question):
		log.Debug().Str("route", string(models.RouteBusiness)).Msg("Question routed")
		return &Decision{Kind: models.RouteBusiness, Instruction: businessInstruction}

	default:
		log.Debug().Str("route", string(models.RouteDocument)).Msg("Question routed")
		return &Decision{Kind: models.RouteDocument, Instruction: BaseInstruction}
	}
}

// databaseInstruction wraps a resolved answer so the generator restates it
// without inventing numbers.
func databaseInstruction(res *models.SQLResolution) string {
	answer := res.Answer
	if res.Table != "" {
		answer += "\n\n" + res.Table
	}
	return fmt.Sprintf(`You are a helpful assistant with access to an e-commerce database.

Database Query Result:
%s

Respond naturally based on the database information above. Use the exact numbers from the database result.`, answer)
}

var conceptualPhrases = []string{
	"what does",
	"what is",
	"what are",
	"explain",
	"define",
	"definition of",
	"meaning of",
	"difference between",
}

func isConceptual(question string) bool {
	q := strings.ToLower(question)
	for _, p := range conceptualPhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

var businessKeywords = []string{
	"revenue",
	"sales",
	"profit",
	"margin",
	"growth",
	"pricing",
	"market",
	"strategy",
	"customer",
	"conversion",
	"retention",
	"forecast",
}

func isBusiness(question string) bool {
	q := strings.ToLower(question)
	for _, k := range businessKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}
