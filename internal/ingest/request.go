package ingest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/HlhDataScience/DocsIngestionApi/internal/document"
)

// Stage names a step of the ingestion graph.
type Stage string

const (
	StagePreflight  Stage = "Preflight"
	StageParsing    Stage = "Parsing"
	StageSegmenting Stage = "Segmenting"
	StageGenerating Stage = "Generating"
	StageEmbedding  Stage = "Embedding"
	StagePersisting Stage = "Persisting"
	StageCompleted  Stage = "Completed"
)

// Outcome is the terminal result of a run.
type Outcome string

const (
	OutcomeCompleted                    Outcome = "Completed"
	OutcomeCompletedWithPartialFailures Outcome = "CompletedWithPartialFailures"
	OutcomeFailed                       Outcome = "Failed"
)

// Request describes one document to ingest.
type Request struct {
	InputDocsPath    string          `json:"input_docs_path" validate:"required"`
	UploadAuthor     string          `json:"upload_author" validate:"required,max=256"`
	DocName          string          `json:"doc_name" validate:"required,max=512"`
	Collection       string          `json:"collection" validate:"required,max=255,excludesall=/"`
	UpdateCollection bool            `json:"update_collection"`
	Format           document.Format `json:"format,omitempty" validate:"omitempty,oneof=text markdown html docx pdf odt rtf doc"`
}

// Failure is one chunk or record that did not make it into the store.
type Failure struct {
	Stage      Stage  `json:"stage"`
	ChunkIndex int    `json:"chunk_index"`
	Reason     string `json:"reason"`
}

// Report summarises a run. Every run produces a report, failed ones
// included, so callers always see what succeeded alongside what failed.
type Report struct {
	IngestionID  string        `json:"ingestion_id"`
	Outcome      Outcome       `json:"outcome"`
	Stage        Stage         `json:"stage,omitempty"`
	Collection   string        `json:"collection"`
	UploadAuthor string        `json:"upload_author"`
	DocName      string        `json:"doc_name"`
	Records      int           `json:"records"`
	Chunks       int           `json:"chunks"`
	Failures     []Failure     `json:"failures"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names in errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate trims the request's text fields and checks them.
func (r *Request) Validate() error {
	r.InputDocsPath = strings.TrimSpace(r.InputDocsPath)
	r.UploadAuthor = strings.TrimSpace(r.UploadAuthor)
	r.DocName = strings.TrimSpace(r.DocName)
	r.Collection = strings.TrimSpace(r.Collection)

	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}
	return nil
}

// describe turns validator errors into "field: rule" messages.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Field() + ": " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
