package ingest

import (
	"github.com/HlhDataScience/DocsIngestionApi/internal/chunking"
	"github.com/HlhDataScience/DocsIngestionApi/internal/markdown"
	"github.com/HlhDataScience/DocsIngestionApi/internal/qa"
)

// state is the per-request data carried between stages. It is owned by a
// single Run and never shared.
type state struct {
	req         Request
	ingestionID string
	stage       Stage

	text       string
	headings   []markdown.Heading
	chunks     *chunking.Iterator
	chunkCount int

	pairs    []qa.Pair // in (chunk index, pair index) order
	embedded []embeddedPair
	failures []Failure
	written  int
}

type embeddedPair struct {
	pair   qa.Pair
	vector []float32
}

func (st *state) report(runErr error) *Report {
	r := &Report{
		IngestionID:  st.ingestionID,
		Collection:   st.req.Collection,
		UploadAuthor: st.req.UploadAuthor,
		DocName:      st.req.DocName,
		Records:      st.written,
		Chunks:       st.chunkCount,
		Failures:     st.failures,
	}
	if r.Failures == nil {
		r.Failures = []Failure{}
	}

	switch {
	case runErr != nil:
		r.Outcome = OutcomeFailed
		r.Stage = st.stage
		r.Error = runErr.Error()
		r.Records = 0
	case len(st.failures) > 0:
		r.Outcome = OutcomeCompletedWithPartialFailures
	default:
		r.Outcome = OutcomeCompleted
	}
	return r
}
