// Package extract turns free text into typed entities and directed
// relationships for the knowledge graph. The primary implementation prompts
// an LLM for JSON output; a heuristic fallback keeps extraction working when
// the model response cannot be parsed.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/log"
)

// TextGenerator is the LLM boundary the extractor prompts. llm.Client
// satisfies it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	// EntityExtractionPrompt asks the model for entities as JSON.
	EntityExtractionPrompt = `
Extract entities from the following text. Focus on these entity types: %s.
Return a JSON response with this structure:
{
  "entities": [
    {
      "name": "entity_name",
      "type": "entity_type"
    }
  ]
}

Text: %s
`

	// RelationshipExtractionPrompt asks the model for relationships between
	// already-extracted entities as JSON.
	RelationshipExtractionPrompt = `
Extract relationships between the following entities from this text.
Consider relationships like: works_with, located_in, created_by, part_of, related_to, etc.
Return a JSON response with this structure:
{
  "relationships": [
    {
      "source": "entity1_name",
      "target": "entity2_name",
      "type": "relationship_type",
      "confidence": 0.9
    }
  ]
}

Text: %s
Entities: %s
`
)

// DefaultEntityTypes contains commonly used entity types.
var DefaultEntityTypes = []string{
	"PERSON",
	"ORGANIZATION",
	"LOCATION",
	"DATE",
	"PRODUCT",
	"EVENT",
	"CONCEPT",
	"TECHNOLOGY",
}

// LLMExtractor implements ragcore.Extractor by prompting a text generator
// for JSON. Unparseable responses fall back to heuristic extraction instead
// of failing the ingestion pipeline.
type LLMExtractor struct {
	generator   TextGenerator
	entityTypes []string
	logger      log.Logger
}

// LLMExtractorOptions configures the extractor. Zero values are replaced
// with defaults.
type LLMExtractorOptions struct {
	EntityTypes []string
	Logger      log.Logger
}

// NewLLMExtractor creates an LLM-backed extractor.
func NewLLMExtractor(generator TextGenerator, opts LLMExtractorOptions) *LLMExtractor {
	if len(opts.EntityTypes) == 0 {
		opts.EntityTypes = DefaultEntityTypes
	}
	if opts.Logger == nil {
		opts.Logger = log.GetDefaultLogger()
	}
	return &LLMExtractor{
		generator:   generator,
		entityTypes: opts.EntityTypes,
		logger:      opts.Logger,
	}
}

var _ ragcore.Extractor = (*LLMExtractor)(nil)

type entityExtractionResult struct {
	Entities []ragcore.ExtractedEntity `json:"entities"`
}

type relationshipExtractionResult struct {
	Relationships []ragcore.ExtractedRelationship `json:"relationships"`
}

// Extract finds entities and relationships in text.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]ragcore.ExtractedEntity, []ragcore.ExtractedRelationship, error) {
	entities, err := e.extractEntities(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	if len(entities) < 2 {
		return entities, nil, nil
	}

	relationships, err := e.extractRelationships(ctx, text, entities)
	if err != nil {
		return nil, nil, err
	}
	return entities, relationships, nil
}

func (e *LLMExtractor) extractEntities(ctx context.Context, text string) ([]ragcore.ExtractedEntity, error) {
	prompt := fmt.Sprintf(EntityExtractionPrompt, strings.Join(e.entityTypes, ", "), text)

	response, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: entity extraction: %v", ragcore.ErrExternalService, err)
	}

	var result entityExtractionResult
	if err := json.Unmarshal([]byte(stripCodeFence(response)), &result); err != nil {
		e.logger.Warn("entity extraction response was not valid JSON, using heuristic fallback")
		return HeuristicEntities(text), nil
	}
	return result.Entities, nil
}

func (e *LLMExtractor) extractRelationships(ctx context.Context, text string, entities []ragcore.ExtractedEntity) ([]ragcore.ExtractedRelationship, error) {
	entityList := make([]string, len(entities))
	for i, entity := range entities {
		entityList[i] = fmt.Sprintf("%s (%s)", entity.Name, entity.Type)
	}
	prompt := fmt.Sprintf(RelationshipExtractionPrompt, text, strings.Join(entityList, ", "))

	response, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: relationship extraction: %v", ragcore.ErrExternalService, err)
	}

	var result relationshipExtractionResult
	if err := json.Unmarshal([]byte(stripCodeFence(response)), &result); err != nil {
		e.logger.Warn("relationship extraction response was not valid JSON, using heuristic fallback")
		return HeuristicRelationships(entities), nil
	}
	return result.Relationships, nil
}

// stripCodeFence removes a surrounding markdown code fence, which chat models
// often wrap JSON in despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// HeuristicEntities extracts capitalized words as untyped entities, the
// fallback when no model output is usable.
func HeuristicEntities(text string) []ragcore.ExtractedEntity {
	seen := make(map[string]bool)
	entities := make([]ragcore.ExtractedEntity, 0)
	for _, word := range strings.Fields(text) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		first, _ := utf8.DecodeRuneInString(word)
		if len(word) <= 2 || !unicode.IsUpper(first) {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		entities = append(entities, ragcore.ExtractedEntity{Name: word, Type: "UNKNOWN"})
	}
	return entities
}

// HeuristicRelationships links consecutive entities with a generic
// low-confidence relationship.
func HeuristicRelationships(entities []ragcore.ExtractedEntity) []ragcore.ExtractedRelationship {
	if len(entities) < 2 {
		return nil
	}
	relationships := make([]ragcore.ExtractedRelationship, 0, len(entities)-1)
	for i := 0; i < len(entities)-1; i++ {
		relationships = append(relationships, ragcore.ExtractedRelationship{
			Source:     entities[i].Name,
			Target:     entities[i+1].Name,
			Type:       "related_to",
			Confidence: 0.5,
		})
	}
	return relationships
}
