package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spoke-graph/backend/internal/adapter"
	apperrors "spoke-graph/backend/pkg/errors"
)

type llmCall struct {
	system string
	user   string
}

// mockLLM replays scripted replies in order
type mockLLM struct {
	replies []string
	err     error
	calls   []llmCall
}

func (m *mockLLM) Generate(ctx context.Context, systemPrompt, userMsg string) (*adapter.Response, error) {
	m.calls = append(m.calls, llmCall{system: systemPrompt, user: userMsg})
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return &adapter.Response{Content: ""}, nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &adapter.Response{Content: reply, Model: "test-model"}, nil
}

// mockQuerier returns rows for queries containing a marker
type mockQuerier struct {
	results map[string][]map[string]any
	err     error
	queries []string
}

func (m *mockQuerier) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	for marker, rows := range m.results {
		if strings.Contains(query, marker) {
			return rows, nil
		}
	}
	return nil, nil
}

// mapCache is an in-memory Cache
type mapCache struct {
	entries map[string]string
	sets    int
}

func (c *mapCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key, value string) error {
	c.sets++
	c.entries[key] = value
	return nil
}

func newTestQA(llm *mockLLM, querier *mockQuerier, opts QAOptions) *GraphQA {
	opts.Logger = zap.NewNop()
	return NewGraphQA(llm, querier, DefaultPrompts(), opts)
}

var brcaRows = []map[string]any{
	{"gene": "BRCA1", "disease": "breast cancer", "edge_label": "ASSOCIATES_DaG"},
}

func TestGraphQA_FirstAttemptSucceeds(t *testing.T) {
	llm := &mockLLM{replies: []string{
		"```cypher\nMATCH (g:Nodes)-[e:Edges {label: 'ASSOCIATES_DaG'}]->(d:Nodes) RETURN g.properties_name AS gene LIMIT 5;\n```",
		"BRCA1 is associated with breast cancer.",
	}}
	querier := &mockQuerier{results: map[string][]map[string]any{"ASSOCIATES_DaG": brcaRows}}
	qa := newTestQA(llm, querier, QAOptions{})

	answer, err := qa.Ask(context.Background(), "  Which genes relate to breast cancer?  ")
	require.NoError(t, err)

	assert.Equal(t, "Which genes relate to breast cancer?", answer.Question)
	assert.Equal(t, 1, answer.Attempts)
	assert.Equal(t, "MATCH (g:Nodes)-[e:Edges {label: 'ASSOCIATES_DaG'}]->(d:Nodes) RETURN g.properties_name AS gene LIMIT 5", answer.Query)
	assert.Equal(t, brcaRows, answer.Rows)
	assert.Equal(t, "BRCA1 is associated with breast cancer.", answer.Story)
	assert.NotEmpty(t, answer.ID)
	require.Len(t, answer.Trace, 1)

	require.Len(t, llm.calls, 2)
	assert.True(t, strings.HasPrefix(llm.calls[0].user, "Which genes relate to breast cancer?"))
	assert.Contains(t, llm.calls[0].user, "<Available Edge Labels>")
	assert.Contains(t, llm.calls[0].user, "TREATS_CtD")
	assert.Contains(t, llm.calls[1].user, `answering the question: "Which genes relate to breast cancer?"`)
	assert.Contains(t, llm.calls[1].user, `"gene":"BRCA1"`)
}

func TestGraphQA_RetriesWithFailurePrefix(t *testing.T) {
	llm := &mockLLM{replies: []string{
		"MATCH (n:Nodes) WHERE n.properties_name = 'nothing' RETURN n",
		"Cypher Statement 2: MATCH (n:Nodes) WHERE n.properties_name = 'BRCA1' RETURN n",
		"A story.",
	}}
	querier := &mockQuerier{results: map[string][]map[string]any{"'BRCA1'": brcaRows}}
	qa := newTestQA(llm, querier, QAOptions{MaxAttempts: 3})

	answer, err := qa.Ask(context.Background(), "Tell me about BRCA1")
	require.NoError(t, err)

	assert.Equal(t, 2, answer.Attempts)
	assert.Equal(t, "MATCH (n:Nodes) WHERE n.properties_name = 'BRCA1' RETURN n", answer.Query)
	require.Len(t, llm.calls, 3)

	second := llm.calls[1].user
	assert.True(t, strings.HasPrefix(second, DefaultPrompts().FailureMessage+" Tell me about BRCA1"))
	assert.Equal(t, llm.calls[0].user, strings.TrimPrefix(second, DefaultPrompts().FailureMessage+" "))
}

func TestGraphQA_NoResultAfterMaxAttempts(t *testing.T) {
	llm := &mockLLM{replies: []string{
		"MATCH (n) RETURN n LIMIT 0",
		"MATCH (n) RETURN n LIMIT 0",
	}}
	querier := &mockQuerier{}
	qa := newTestQA(llm, querier, QAOptions{MaxAttempts: 2})

	answer, err := qa.Ask(context.Background(), "anything?")
	require.NoError(t, err)

	assert.Equal(t, 2, answer.Attempts)
	assert.False(t, answer.Found())
	assert.Empty(t, answer.Story)
	assert.Len(t, llm.calls, 2)

	// Failure prefix is only added between attempts
	prefix := DefaultPrompts().FailureMessage
	assert.Equal(t, 1, strings.Count(llm.calls[1].user, prefix))
	assert.Contains(t, answer.Format(), "No result found after 2 tries.")
}

func TestGraphQA_RejectsWritesAndRetries(t *testing.T) {
	llm := &mockLLM{replies: []string{
		"MATCH (n:Nodes) DETACH DELETE n",
		"MATCH (n:Nodes) RETURN n.properties_name AS gene LIMIT 1",
		"Narrative.",
	}}
	querier := &mockQuerier{results: map[string][]map[string]any{"RETURN": brcaRows}}
	qa := newTestQA(llm, querier, QAOptions{})

	answer, err := qa.Ask(context.Background(), "delete everything")
	require.NoError(t, err)

	assert.Equal(t, 2, answer.Attempts)
	require.Len(t, answer.Trace, 2)
	assert.Contains(t, answer.Trace[0].Error, "DETACH")
	// The unsafe statement never reached the graph
	assert.Equal(t, []string{"MATCH (n:Nodes) RETURN n.properties_name AS gene LIMIT 1"}, querier.queries)
}

func TestGraphQA_QueryErrorRetries(t *testing.T) {
	llm := &mockLLM{replies: []string{"MATCH (n RETURN n", "MATCH (n RETURN n"}}
	querier := &mockQuerier{err: apperrors.NewGraphQueryFailed("MATCH (n RETURN n", errors.New("syntax error"))}
	qa := newTestQA(llm, querier, QAOptions{MaxAttempts: 2})

	answer, err := qa.Ask(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, 2, answer.Attempts)
	assert.Len(t, querier.queries, 2)
	assert.NotEmpty(t, answer.Trace[1].Error)
}

func TestGraphQA_LLMFailure(t *testing.T) {
	llmErr := apperrors.NewAgentLLMFailed("gpt-4o", 3, true, errors.New("502"))
	qa := newTestQA(&mockLLM{err: llmErr}, &mockQuerier{}, QAOptions{})

	_, err := qa.Ask(context.Background(), "q")

	var target *apperrors.ErrAgentLLMFailed
	assert.ErrorAs(t, err, &target)
}

func TestGraphQA_EmptyQuestion(t *testing.T) {
	qa := newTestQA(&mockLLM{}, &mockQuerier{}, QAOptions{})

	_, err := qa.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestGraphQA_MaxRowsTruncates(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"i": i}
	}
	llm := &mockLLM{replies: []string{"MATCH (n) RETURN n", "story"}}
	querier := &mockQuerier{results: map[string][]map[string]any{"RETURN": rows}}
	qa := newTestQA(llm, querier, QAOptions{MaxRows: 2})

	answer, err := qa.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, answer.Rows, 2)
	assert.Equal(t, 5, answer.TotalRows)
}

func TestGraphQA_SchemaIncludedInPrompt(t *testing.T) {
	llm := &mockLLM{replies: []string{"MATCH (n) RETURN n", "story"}}
	querier := &mockQuerier{results: map[string][]map[string]any{"RETURN": brcaRows}}
	qa := newTestQA(llm, querier, QAOptions{
		Schema: func(ctx context.Context) (string, error) { return "Nodes: 10, Edges: 20", nil },
	})

	_, err := qa.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, llm.calls[0].user, "<Live Schema>Nodes: 10, Edges: 20</Live Schema>")
}

func TestGraphQA_CachesAnswers(t *testing.T) {
	cache := &mapCache{entries: map[string]string{}}
	llm := &mockLLM{replies: []string{"MATCH (n) RETURN n", "story"}}
	querier := &mockQuerier{results: map[string][]map[string]any{"RETURN": brcaRows}}
	qa := newTestQA(llm, querier, QAOptions{Cache: cache})

	first, err := qa.Ask(context.Background(), "What is BRCA1?")
	require.NoError(t, err)

	second, err := qa.Ask(context.Background(), "what   is brca1?")
	require.NoError(t, err)

	assert.Equal(t, 1, cache.sets)
	assert.Len(t, llm.calls, 2)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "story", second.Story)
}

func TestAnswer_Format(t *testing.T) {
	answer := &Answer{
		Attempts: 2,
		Query:    "MATCH (n) RETURN n",
		Rows:     brcaRows,
		Story:    "BRCA1 story",
	}

	assert.Equal(t, "Attempt Count: 2\n\nQuery Info: MATCH (n) RETURN n\n\nLLM Interpretation:\nBRCA1 story", answer.Format())
}

func TestExtractQuery(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "MATCH (n) RETURN n", "MATCH (n) RETURN n"},
		{"semicolon", "MATCH (n) RETURN n;", "MATCH (n) RETURN n"},
		{"fenced cypher", "Here you go:\n```cypher\nMATCH (n)\nRETURN n\n```\nHope it helps", "MATCH (n)\nRETURN n"},
		{"fenced bare", "```\nMATCH (n) RETURN n\n```", "MATCH (n) RETURN n"},
		{"labelled", "Cypher Statement 1: MATCH (n) RETURN n", "MATCH (n) RETURN n"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractQuery(tt.reply))
		})
	}
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		query   string
		keyword string
	}{
		{"MATCH (n:Nodes) RETURN n LIMIT 10", ""},
		{"MATCH (n) WHERE n.properties_name CONTAINS 'create' RETURN n", ""},
		{"MATCH (n) WHERE n.properties_description = \"set of genes\" RETURN n", ""},
		{"MATCH (n) RETURN n.`delete` AS x", ""},
		{"MATCH (n) RETURN n // then DELETE n", ""},
		{"MATCH (n) RETURN n SKIP 5 LIMIT 5", ""},
		{"MATCH (n) WITH n.properties_offset AS o RETURN o", ""},
		{"CALL db.labels() YIELD label RETURN label", ""},
		{"CREATE (n:Nodes {_key: 'x'})", "CREATE"},
		{"match (n) detach delete n", "DETACH"},
		{"MATCH (n) SET n.x = 1", "SET"},
		{"MERGE (n:Nodes {_key: 'x'})", "MERGE"},
		{"MATCH (n) REMOVE n.x", "REMOVE"},
		{"DROP CONSTRAINT nodes_key_unique", "DROP"},
		{"LOAD  CSV FROM 'file:///x.csv' AS row RETURN row", "LOAD CSV"},
		{"CALL dbms.security.listUsers()", "CALL DBMS"},
		{"CALL db.createLabel('X')", "CALL DB.CREATE"},
		{"MATCH (n) WHERE n.x = 'a//b' DELETE n", "DELETE"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if tt.keyword == "" {
				assert.NoError(t, err)
				return
			}
			var unsafe *apperrors.ErrUnsafeQuery
			require.ErrorAs(t, err, &unsafe)
			assert.Equal(t, tt.keyword, unsafe.Keyword)
		})
	}
}
