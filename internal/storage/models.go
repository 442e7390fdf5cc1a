package storage

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Payload field names, shared by every backend and by the payload indexes.
const (
	FieldQuestion     = "question"
	FieldAnswer       = "answer"
	FieldDocName      = "doc_name"
	FieldUploadAuthor = "upload_author"
	FieldCollection   = "collection"
	FieldIndexID      = "index_id"
	FieldIngestedAt   = "ingestion_timestamp"
	FieldChunkIndex   = "chunk_index"
	FieldSource       = "source"
	FieldCategory     = "category"
	FieldIngestionID  = "ingestion_id"
)

// DefaultCategory is stored on every record.
const DefaultCategory = "general"

// Payload is the metadata stored alongside each vector.
type Payload struct {
	Question     string
	Answer       string
	DocName      string
	UploadAuthor string
	Collection   string
	IndexID      int       // Contiguous per (upload_author, doc_name), from 1
	IngestedAt   time.Time // When the record was written
	ChunkIndex   int       // Source chunk position
	Source       string    // input_docs_path the record came from
	Category     string
	IngestionID  string // Run that wrote the record
}

// Record is one persisted Q&A pair with its embedding.
type Record struct {
	ID      string
	Vector  []float32 // Nil in search results
	Payload Payload
}

// Filter selects records by payload. Zero-valued fields do not constrain.
type Filter struct {
	UploadAuthor       string
	DocName            string
	IndexID            int
	IngestionID        string
	ExcludeIngestionID string
}

// Empty reports whether f selects every record.
func (f Filter) Empty() bool {
	return f == Filter{}
}

// Matches reports whether p satisfies every condition of f.
func (f Filter) Matches(p Payload) bool {
	if f.UploadAuthor != "" && p.UploadAuthor != f.UploadAuthor {
		return false
	}
	if f.DocName != "" && p.DocName != f.DocName {
		return false
	}
	if f.IndexID != 0 && p.IndexID != f.IndexID {
		return false
	}
	if f.IngestionID != "" && p.IngestionID != f.IngestionID {
		return false
	}
	if f.ExcludeIngestionID != "" && p.IngestionID == f.ExcludeIngestionID {
		return false
	}
	return true
}

// OrderBy names the sort key of a search.
type OrderBy string

const (
	OrderByIndexID    OrderBy = FieldIndexID
	OrderByDocName    OrderBy = FieldDocName
	OrderByIngestedAt OrderBy = FieldIngestedAt
)

// SearchRequest is a filtered, ordered, paginated scan.
type SearchRequest struct {
	Filter     Filter
	OrderBy    OrderBy
	Descending bool
	Limit      int // 0 means no limit
	Offset     int

	// LatestOnly hides records of older runs of the same document, which
	// exist briefly while an update replaces them.
	LatestOnly bool
}

// SearchPage is one page of results plus the number of matching records.
type SearchPage struct {
	Total   int
	Records []Record
}

// ScoredRecord is a similarity query hit. Vector is nil.
type ScoredRecord struct {
	Record
	Score float64
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name      string
	Points    uint64
	Dimension int
}

// recordNamespace scopes the UUIDv5 point ids of this service.
var recordNamespace = uuid.MustParse("6f1d8a52-2b7e-4c3e-9a51-0d7c4f3b8e21")

// RecordID derives a stable point id from the record's identity within a
// collection and the run that wrote it.
func RecordID(collection, uploadAuthor, docName, ingestionID string, indexID int) string {
	name := collection + "\x00" + uploadAuthor + "\x00" + docName + "\x00" + ingestionID + "\x00" + strconv.Itoa(indexID)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}
