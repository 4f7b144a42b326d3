package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/llm"
	"chemagent/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWikipediaReturnsPageSummaries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Get("list") == "search":
			if q.Get("srsearch") != "Water" {
				t.Fatalf("unexpected search %q", q.Get("srsearch"))
			}
			_, _ = w.Write([]byte(`{"query":{"search":[{"title":"Water"},{"title":"Properties of water"}]}}`))
		case q.Get("titles") == "Water":
			_, _ = w.Write([]byte(`{"query":{"pages":{"33306":{"title":"Water","extract":"<p class=\"mw-empty-elt\"></p><p><b>Water</b> is an inorganic compound with the chemical formula H<sub>2</sub>O.<sup class=\"reference\">[1]</sup></p><p>It is transparent.</p>"}}}}`))
		default:
			_, _ = w.Write([]byte(`{"query":{"pages":{"-1":{"title":"Properties of water","extract":""}}}}`))
		}
	}))
	defer server.Close()

	wiki := NewWikipedia(server.URL, server.Client(), nil)
	out, err := wiki.Invoke(context.Background(), "Water", "")
	require.NoError(t, err)
	assert.Equal(t, "Page: Water\nSummary: Water is an inorganic compound with the chemical formula H2O.\nIt is transparent.", out)
	assert.True(t, wiki.Cacheable())
}

func TestWikipediaNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"query":{"search":[]}}`))
	}))
	defer server.Close()

	out, err := NewWikipedia(server.URL, server.Client(), nil).Invoke(context.Background(), "zzzz", "")
	require.NoError(t, err)
	assert.Equal(t, wikipediaNoResult, out)
}

func TestWebSearchReturnsTavilyAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body tavilyRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.APIKey != "tvly-test" || body.SearchDepth != "advanced" || !body.IncludeAnswer {
			t.Fatalf("unexpected request %+v", body)
		}
		_, _ = w.Write([]byte(`{"query":"boiling point of water","answer":"The boiling point of water at sea level is 100°C (212°F).","results":[]}`))
	}))
	defer server.Close()

	search := NewWebSearch("tvly-test", server.URL, server.Client(), nil)
	out, err := search.Invoke(context.Background(), "boiling point of water", "")
	require.NoError(t, err)
	assert.Equal(t, "The boiling point of water at sea level is 100°C (212°F).", out)
}

func TestWebSearchErrorsAreRecoverable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewWebSearch("bad", server.URL, server.Client(), nil).Invoke(context.Background(), "q", "")
	require.Error(t, err)
	assert.True(t, chemerrors.IsRecoverableToolError(err))
}

func TestAiExpertAsksModel(t *testing.T) {
	model := llm.NewScriptedClient("  Water boils at 100 C.  ")
	expert := NewAiExpert(model)

	out, err := expert.Invoke(context.Background(), "What is the boiling point of water?", "")
	require.NoError(t, err)
	assert.Equal(t, "Water boils at 100 C.", out)

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, aiExpertSystemPrompt, reqs[0].Messages[0].Content)
	assert.Equal(t, "Question: What is the boiling point of water?", reqs[0].Messages[1].Content)

	failing := llm.NewScriptedClient()
	failing.Errors = map[int]error{0: errors.New("boom")}
	_, err = NewAiExpert(failing).Invoke(context.Background(), "q", "")
	require.Error(t, err)
	assert.False(t, chemerrors.IsRecoverableToolError(err))
}

func TestMakeToolsSelection(t *testing.T) {
	base := Config{Executor: &fakeExecutor{}, ExpertLLM: llm.NewScriptedClient()}

	all, err := MakeTools(base)
	require.NoError(t, err)
	assert.Equal(t, []string{
		tools.IUPAC2SMILES, tools.SMILES2IUPAC, tools.Name2SMILES, tools.SMILES2Formula,
		tools.MolSimilarity, tools.SMILES2Weight, tools.WikipediaSearch, tools.PythonREPL, tools.AiExpert,
	}, tools.Names(all))

	withKey := base
	withKey.TavilyAPIKey = "tvly"
	keyed, err := MakeTools(withKey)
	require.NoError(t, err)
	assert.Contains(t, tools.Names(keyed), tools.WebSearch)

	included := base
	included.Include = []string{tools.PythonREPL, tools.AiExpert}
	some, err := MakeTools(included)
	require.NoError(t, err)
	assert.Equal(t, []string{tools.PythonREPL, tools.AiExpert}, tools.Names(some))

	excluded := base
	excluded.Exclude = []string{tools.AiExpert, tools.WikipediaSearch}
	rest, err := MakeTools(excluded)
	require.NoError(t, err)
	assert.NotContains(t, tools.Names(rest), tools.AiExpert)
	assert.NotContains(t, tools.Names(rest), tools.WikipediaSearch)

	both := base
	both.Include = []string{tools.PythonREPL}
	both.Exclude = []string{tools.AiExpert}
	_, err = MakeTools(both)
	assert.ErrorIs(t, err, ErrIncludeAndExclude)
}
