package qa

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HlhDataScience/DocsIngestionApi/internal/chunking"
	"github.com/HlhDataScience/DocsIngestionApi/internal/llm"
)

const (
	verdictCorrect = "correct"
	verdictRetry   = "retry"
)

type verdict struct {
	Evaluation string `json:"evaluation"`
	Reasoning  string `json:"reasoning"`
}

// refine runs evaluator/refiner rounds until the evaluator accepts the pairs
// or the round limit is reached. Any review failure keeps the last valid
// pairs.
func (g *Generator) refine(ctx context.Context, chunk chunking.Chunk, pairs []Pair, examples []Example) []Pair {
	for round := 1; round <= g.maxRefinements; round++ {
		v, err := g.evaluate(ctx, chunk.Text, pairs, examples)
		if err != nil {
			g.logger.Warn("Review skipped", "chunk", chunk.Index, "round", round, "error", err)
			return pairs
		}
		if v.Evaluation == verdictCorrect {
			return pairs
		}

		refined, err := g.completePairs(ctx, llm.Prompt{
			System: refinerSystemPrompt,
			User:   buildRefinerPrompt(chunk.Text, pairs, v.Reasoning),
		}, chunk.Index)
		if err != nil {
			g.logger.Warn("Refinement failed", "chunk", chunk.Index, "round", round, "error", err)
			return pairs
		}
		if len(refined) == 0 {
			return pairs
		}
		pairs = refined
	}

	g.logger.Debug("Review rounds exhausted", "chunk", chunk.Index, "rounds", g.maxRefinements)
	return pairs
}

func (g *Generator) evaluate(ctx context.Context, text string, pairs []Pair, examples []Example) (*verdict, error) {
	raw, err := g.complete(ctx, llm.Prompt{
		System: evaluatorSystemPrompt,
		User:   buildEvaluatorPrompt(text, pairs, examples),
	})
	if err != nil {
		return nil, err
	}

	var v verdict
	if err := json.Unmarshal([]byte(repairJSON(stripCodeFences(raw))), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	switch v.Evaluation {
	case verdictCorrect, verdictRetry:
		return &v, nil
	default:
		return nil, fmt.Errorf("%w: unknown evaluation %q", errMalformed, v.Evaluation)
	}
}
