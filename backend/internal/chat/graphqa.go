package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spoke-graph/backend/internal/graph"
	apperrors "spoke-graph/backend/pkg/errors"
	"spoke-graph/backend/pkg/logger"
)

const (
	defaultMaxAttempts = 3
	defaultMaxRows     = 200
)

// SchemaFunc returns a short live description of the graph for the query prompt
type SchemaFunc func(ctx context.Context) (string, error)

// QAOptions configures a GraphQA
type QAOptions struct {
	MaxAttempts int
	// MaxRows caps the rows kept on the answer and sent for interpretation
	MaxRows int
	Schema  SchemaFunc
	Cache   Cache
	Logger  *zap.Logger
}

// GraphQA turns a question into a read-only graph query, runs it and narrates the rows
type GraphQA struct {
	llm         Generator
	graph       graph.Querier
	prompts     Prompts
	maxAttempts int
	maxRows     int
	schema      SchemaFunc
	cache       Cache
	logger      *zap.Logger
}

// AttemptTrace records what happened on one generation round
type AttemptTrace struct {
	Number int    `json:"number"`
	Query  string `json:"query,omitempty"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}

// Answer is the structured result of a graph question
type Answer struct {
	ID        string           `json:"id"`
	Question  string           `json:"question"`
	Attempts  int              `json:"attempts"`
	Query     string           `json:"query"`
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"total_rows"`
	Story     string           `json:"story"`
	Trace     []AttemptTrace   `json:"trace"`
}

// Found reports whether any attempt returned rows
func (a *Answer) Found() bool {
	return len(a.Rows) > 0
}

// Format renders the answer as plain text for chat surfaces
func (a *Answer) Format() string {
	story := a.Story
	if !a.Found() {
		story = fmt.Sprintf("No result found after %d tries.", a.Attempts)
	}
	return fmt.Sprintf("Attempt Count: %d\n\nQuery Info: %s\n\nLLM Interpretation:\n%s", a.Attempts, a.Query, story)
}

// NewGraphQA wires the LLM and the graph together
func NewGraphQA(llm Generator, querier graph.Querier, prompts Prompts, opts QAOptions) *GraphQA {
	qa := &GraphQA{
		llm:         llm,
		graph:       querier,
		prompts:     prompts,
		maxAttempts: opts.MaxAttempts,
		maxRows:     opts.MaxRows,
		schema:      opts.Schema,
		cache:       opts.Cache,
		logger:      opts.Logger,
	}
	if qa.maxAttempts <= 0 {
		qa.maxAttempts = defaultMaxAttempts
	}
	if qa.maxRows <= 0 {
		qa.maxRows = defaultMaxRows
	}
	if qa.cache == nil {
		qa.cache = NoopCache{}
	}
	if qa.logger == nil {
		qa.logger = logger.Named("graphqa")
	}
	return qa
}

// Ask answers question against the graph. An answer with no rows after every
// attempt is not an error; LLM failures and cancellation are.
func (q *GraphQA) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	key := cacheKey("graphqa", question)
	if cached, ok := q.cached(ctx, key); ok {
		return cached, nil
	}

	answer := &Answer{ID: uuid.NewString(), Question: question}
	log := q.logger.With(zap.String("answer_id", answer.ID))

	prompt := question + q.prompts.BasePrompt(q.liveSchema(ctx))

	var rows []map[string]any
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		answer.Attempts = attempt
		log.Info("Executing query", zap.Int("attempt", attempt))

		trace := AttemptTrace{Number: attempt}
		query, err := q.generateQuery(ctx, prompt)
		if err != nil {
			return nil, err
		}
		trace.Query = query
		answer.Query = query

		rows, err = q.runQuery(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperrors.NewContextCancelled("graph question", ctx.Err())
			}
			trace.Error = err.Error()
			log.Warn("Query attempt failed", zap.Int("attempt", attempt), zap.String("query", query), zap.Error(err))
		}
		trace.Rows = len(rows)
		answer.Trace = append(answer.Trace, trace)

		if len(rows) > 0 {
			log.Info("Query returned results", zap.Int("attempt", attempt), zap.Int("rows", len(rows)))
			break
		}

		log.Info("Query returned no result", zap.Int("attempt", attempt))
		if attempt < q.maxAttempts {
			prompt = q.prompts.FailureMessage + " " + prompt
		}
	}

	if len(rows) == 0 {
		log.Info("No result found", zap.Int("attempts", answer.Attempts))
		return answer, nil
	}

	answer.TotalRows = len(rows)
	if len(rows) > q.maxRows {
		rows = rows[:q.maxRows]
	}
	answer.Rows = rows

	story, err := q.interpret(ctx, question, rows)
	if err != nil {
		return nil, err
	}
	answer.Story = story

	q.store(ctx, key, answer)
	return answer, nil
}

func (q *GraphQA) liveSchema(ctx context.Context) string {
	if q.schema == nil {
		return ""
	}
	schema, err := q.schema(ctx)
	if err != nil {
		q.logger.Warn("Failed to describe graph schema", zap.Error(err))
		return ""
	}
	return schema
}

func (q *GraphQA) generateQuery(ctx context.Context, prompt string) (string, error) {
	resp, err := q.llm.Generate(ctx, q.prompts.QuerySystem, prompt)
	if err != nil {
		return "", err
	}
	return ExtractQuery(resp.Content), nil
}

func (q *GraphQA) runQuery(ctx context.Context, query string) ([]map[string]any, error) {
	if query == "" {
		return nil, errNoQuery
	}
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}
	return q.graph.Query(ctx, query, nil)
}

func (q *GraphQA) interpret(ctx context.Context, question string, rows []map[string]any) (string, error) {
	prompt, err := q.prompts.InterpretationPrompt(question, rows)
	if err != nil {
		return "", err
	}
	resp, err := q.llm.Generate(ctx, "", prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (q *GraphQA) cached(ctx context.Context, key string) (*Answer, bool) {
	raw, ok, err := q.cache.Get(ctx, key)
	if err != nil {
		q.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var answer Answer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		q.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &answer, true
}

func (q *GraphQA) store(ctx context.Context, key string, answer *Answer) {
	raw, err := json.Marshal(answer)
	if err != nil {
		q.logger.Warn("Failed to encode answer for cache", zap.Error(err))
		return
	}
	if err := q.cache.Set(ctx, key, string(raw)); err != nil {
		q.logger.Warn("Cache store failed", zap.Error(err))
	}
}

var errNoQuery = errors.New("model reply contained no query")

var (
	fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n?(.*?)```")
	answerLabel = regexp.MustCompile(`(?i)^\s*cypher\s+statement\s*\d*\s*:\s*`)
)

// ExtractQuery pulls the statement out of a model reply: the first fenced code
// block if there is one, otherwise the whole reply minus any "Cypher Statement N:" label.
func ExtractQuery(reply string) string {
	text := reply
	if m := fencedBlock.FindStringSubmatch(reply); m != nil {
		text = m[1]
	}
	text = answerLabel.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, ";")
	return strings.TrimSpace(text)
}

var (
	literalOrComment = regexp.MustCompile(`(?s)'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|` + "`[^`]*`" + `|//[^\n]*|/\*.*?\*/`)
	writeClause      = regexp.MustCompile(`(?i)\b(?:CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV)\b|\bCALL\s+(?:dbms|db\.create|apoc\.(?:create|merge|refactor|periodic))`)
	spaceRun         = regexp.MustCompile(`\s+`)
)

// CheckReadOnly rejects statements that could modify the graph. Keywords inside
// string literals, quoted identifiers and comments are ignored.
func CheckReadOnly(query string) error {
	stripped := literalOrComment.ReplaceAllString(query, " ")

	if m := writeClause.FindString(stripped); m != "" {
		keyword := strings.ToUpper(spaceRun.ReplaceAllString(m, " "))
		return apperrors.NewUnsafeQuery(query, keyword)
	}
	return nil
}
