package qa

import (
	"encoding/json"
	"fmt"
	"strings"
)

const generatorSystemPrompt = `You write question and answer pairs for a company knowledge base.

Rules:
- Every answer must be taken from the provided text. Do not add facts that are not in it.
- Questions must be self-contained and understandable without the text.
- Write in the language of the text.
- If the text contains nothing worth asking about, return an empty list.
- SECTION, when given, is where the text sits in the document. Use it to make questions specific.

Respond only with JSON in this exact shape:
{"qa_pairs": [{"question": "...", "answer": "..."}]}`

const evaluatorSystemPrompt = `You review question and answer pairs generated from a text.

Check that every answer is supported by the text, that questions are clear and self-contained,
and that the pairs cover the important facts. Compare their style with the examples when given.

Respond only with JSON in this exact shape:
{"evaluation": "correct" or "retry", "reasoning": "short explanation"}`

const refinerSystemPrompt = `You improve question and answer pairs generated from a text using reviewer feedback.

Keep every answer grounded in the text. Fix the problems the reviewer names and keep the pairs that are fine.

Respond only with JSON in this exact shape:
{"qa_pairs": [{"question": "...", "answer": "..."}]}`

// buildGeneratorPrompt assembles the user message for one chunk.
func buildGeneratorPrompt(text, headerPath string, examples []Example) string {
	var b strings.Builder
	if len(examples) > 0 {
		b.WriteString("EXAMPLES\n")
		b.WriteString(examplesJSON(examples))
		b.WriteString("\n\n")
	}
	if headerPath != "" {
		b.WriteString("SECTION\n")
		b.WriteString(headerPath)
		b.WriteString("\n\n")
	}
	b.WriteString("TEXT\n")
	b.WriteString(text)
	return b.String()
}

func buildEvaluatorPrompt(text string, pairs []Pair, examples []Example) string {
	var b strings.Builder
	if len(examples) > 0 {
		b.WriteString("EXAMPLES\n")
		b.WriteString(examplesJSON(examples))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "TEXT\n%s\n\nGENERATED\n%s", text, pairsJSON(pairs))
	return b.String()
}

func buildRefinerPrompt(text string, pairs []Pair, feedback string) string {
	return fmt.Sprintf("TEXT\n%s\n\nGENERATED\n%s\n\nFEEDBACK\n%s", text, pairsJSON(pairs), feedback)
}

func pairsJSON(pairs []Pair) string {
	data, _ := json.Marshal(map[string][]Pair{"qa_pairs": pairs})
	return string(data)
}

func examplesJSON(examples []Example) string {
	data, _ := json.Marshal(examples)
	return string(data)
}
