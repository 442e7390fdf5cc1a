package qa

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pair is one question/answer unit derived from a chunk.
type Pair struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	ChunkIndex int    `json:"-"`
}

type pairsEnvelope struct {
	QAPairs  *[]Pair `json:"qa_pairs"`
	Response *[]Pair `json:"response"`
}

// parsePairs decodes the model's JSON reply. The pairs may sit under
// "qa_pairs", "response" or be a bare array. Any pair with an empty field
// rejects the whole reply.
func parsePairs(raw string) ([]Pair, error) {
	text := repairJSON(stripCodeFences(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", errMalformed)
	}

	var pairs []Pair
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &pairs); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
	} else {
		var env pairsEnvelope
		if err := json.Unmarshal([]byte(text), &env); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		switch {
		case env.QAPairs != nil:
			pairs = *env.QAPairs
		case env.Response != nil:
			pairs = *env.Response
		default:
			return nil, fmt.Errorf("%w: missing qa_pairs", errMalformed)
		}
	}

	out := make([]Pair, 0, len(pairs))
	for i, p := range pairs {
		p.Question = strings.TrimSpace(p.Question)
		p.Answer = strings.TrimSpace(p.Answer)
		if p.Question == "" || p.Answer == "" {
			return nil, fmt.Errorf("%w: pair %d has an empty field", errMalformed, i)
		}
		out = append(out, p)
	}
	return out, nil
}

// stripCodeFences removes a surrounding markdown code fence if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// repairJSON fixes a common model formatting slip: a key missing its
// opening quote, as in `{question": "..."}`.
func repairJSON(s string) string {
	in := []rune(s)
	fixed := make([]rune, 0, len(in)+16)

	inString := false
	for i := 0; i < len(in); i++ {
		ch := in[i]
		fixed = append(fixed, ch)

		if ch == '"' && (i == 0 || in[i-1] != '\\') {
			inString = !inString
			continue
		}
		if inString || (ch != '{' && ch != ',') {
			continue
		}

		// Copy whitespace, then look for word":
		j := i + 1
		for j < len(in) && isSpace(in[j]) {
			j++
		}
		k := j
		for k < len(in) && (isLetter(in[k]) || in[k] == '_') {
			k++
		}
		if k > j && k+1 < len(in) && in[k] == '"' && in[k+1] == ':' {
			fixed = append(fixed, in[i+1:j]...)
			fixed = append(fixed, '"')
			fixed = append(fixed, in[j:k+1]...)
			i = k
		}
	}
	return string(fixed)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
