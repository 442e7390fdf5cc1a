package qa

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
)

// Example is a reference Q&A pair shown to the model for style.
type Example struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ExampleBank samples examples from a JSON file holding an array of objects
// with question and answer fields. Other fields are ignored.
type ExampleBank struct {
	path string
	rand func(n int) int
}

// NewExampleBank checks that path is readable and returns a bank over it.
func NewExampleBank(path string) (*ExampleBank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open examples file: %w", err)
	}
	f.Close()
	return &ExampleBank{path: path, rand: rand.IntN}, nil
}

// Sample streams the file and returns up to k examples chosen uniformly with
// reservoir sampling, so the file is never held in memory.
func (b *ExampleBank) Sample(k int) ([]Example, error) {
	if k <= 0 {
		return nil, nil
	}

	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open examples file: %w", err)
	}
	defer f.Close()

	return sampleExamples(f, k, b.rand)
}

func sampleExamples(r io.Reader, k int, randN func(int) int) ([]Example, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, errors.New("examples file must hold a JSON array")
	}

	reservoir := make([]Example, 0, k)
	seen := 0
	for dec.More() {
		var ex Example
		if err := dec.Decode(&ex); err != nil {
			return nil, fmt.Errorf("decode example %d: %w", seen, err)
		}
		ex.Question = strings.TrimSpace(ex.Question)
		ex.Answer = strings.TrimSpace(ex.Answer)
		if ex.Question == "" || ex.Answer == "" {
			continue
		}

		if seen < k {
			reservoir = append(reservoir, ex)
		} else if j := randN(seen + 1); j < k {
			reservoir[j] = ex
		}
		seen++
	}
	return reservoir, nil
}
