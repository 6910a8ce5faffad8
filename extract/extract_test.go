package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragcore"
)

// scriptedGenerator returns canned responses in call order.
type scriptedGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if g.calls >= len(g.responses) {
		return "", errors.New("no more responses")
	}
	response := g.responses[g.calls]
	g.calls++
	return response, nil
}

func TestLLMExtractor_ParsesJSONResponses(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"entities": [{"name": "Alice", "type": "PERSON"}, {"name": "Acme", "type": "ORGANIZATION"}]}`,
		`{"relationships": [{"source": "Alice", "target": "Acme", "type": "works_with", "confidence": 0.9}]}`,
	}}
	e := NewLLMExtractor(gen, LLMExtractorOptions{})

	entities, relationships, err := e.Extract(context.Background(), "Alice works at Acme.")
	require.NoError(t, err)

	require.Len(t, entities, 2)
	assert.Equal(t, "Alice", entities[0].Name)
	assert.Equal(t, "PERSON", entities[0].Type)

	require.Len(t, relationships, 1)
	assert.Equal(t, "Alice", relationships[0].Source)
	assert.Equal(t, "Acme", relationships[0].Target)
	assert.Equal(t, "works_with", relationships[0].Type)
	assert.InDelta(t, 0.9, relationships[0].Confidence, 1e-9)
}

func TestLLMExtractor_StripsCodeFences(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"```json\n{\"entities\": [{\"name\": \"Alice\", \"type\": \"PERSON\"}]}\n```",
	}}
	e := NewLLMExtractor(gen, LLMExtractorOptions{})

	entities, relationships, err := e.Extract(context.Background(), "Alice.")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Alice", entities[0].Name)
	// A single entity never triggers the relationship pass.
	assert.Empty(t, relationships)
	assert.Equal(t, 1, gen.calls)
}

func TestLLMExtractor_FallsBackOnMalformedJSON(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"Sure! Here are the entities I found: Alice and Bob.",
		"not json either",
	}}
	e := NewLLMExtractor(gen, LLMExtractorOptions{})

	entities, relationships, err := e.Extract(context.Background(), "Alice met Bob in Paris.")
	require.NoError(t, err)

	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		assert.Equal(t, "UNKNOWN", entity.Type)
		names = append(names, entity.Name)
	}
	assert.ElementsMatch(t, []string{"Alice", "Bob", "Paris"}, names)

	// Heuristic relationships chain consecutive entities.
	require.Len(t, relationships, 2)
	for _, rel := range relationships {
		assert.Equal(t, "related_to", rel.Type)
		assert.InDelta(t, 0.5, rel.Confidence, 1e-9)
	}
}

func TestLLMExtractor_GeneratorErrorWrapsExternalService(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("model unavailable")}
	e := NewLLMExtractor(gen, LLMExtractorOptions{})

	_, _, err := e.Extract(context.Background(), "anything")
	assert.ErrorIs(t, err, ragcore.ErrExternalService)
}

func TestLLMExtractor_PromptCarriesEntityTypes(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`{"entities": []}`}}
	e := NewLLMExtractor(gen, LLMExtractorOptions{EntityTypes: []string{"GENE", "PROTEIN"}})

	_, _, err := e.Extract(context.Background(), "some text")
	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)
	assert.True(t, strings.Contains(gen.prompts[0], "GENE, PROTEIN"))
}

func TestHeuristicEntities_Dedupes(t *testing.T) {
	entities := HeuristicEntities("Alice spoke. Alice listened. bob did nothing.")
	require.Len(t, entities, 1)
	assert.Equal(t, "Alice", entities[0].Name)
}

func TestHeuristicEntities_NonASCIICapitals(t *testing.T) {
	entities := HeuristicEntities("Łukasz met Über engineers in Zürich. ärger stayed home.")

	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		names = append(names, entity.Name)
	}
	assert.Equal(t, []string{"Łukasz", "Über", "Zürich"}, names)
}
