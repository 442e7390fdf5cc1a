// Package mcp exposes ingestion and Q&A search as Model Context Protocol tools.
package mcp

// SearchQAInput defines the input parameters for the search_qa tool.
type SearchQAInput struct {
	// UploadAuthor is the author whose records are searched.
	UploadAuthor string `json:"upload_author" jsonschema:"author the documents were uploaded by"`
	// DocName narrows the search to one document.
	DocName string `json:"doc_name,omitempty" jsonschema:"document name; omit to search every document of the author"`
	// Index selects a single Q&A pair by its index_id.
	Index *int `json:"index,omitempty" jsonschema:"index_id of a single pair, starting at 1"`
	// OrderBy is index_id, doc_name or ingestion_timestamp.
	OrderBy string `json:"order_by,omitempty" jsonschema:"sort key: index_id, doc_name or ingestion_timestamp"`
	// Descending reverses the sort order.
	Descending bool `json:"descending,omitempty" jsonschema:"sort in descending order"`
	// Collection defaults to the server's default collection.
	Collection string `json:"collection,omitempty" jsonschema:"collection to search; defaults to the server default"`
	Page       int    `json:"page,omitempty" jsonschema:"page number, starting at 1"`
	PageSize   int    `json:"page_size,omitempty" jsonschema:"records per page, at most 500"`
}

// SimilarQAInput defines the input parameters for the similar_qa tool.
type SimilarQAInput struct {
	// Query is compared with the stored questions.
	Query        string `json:"q" jsonschema:"free-text question to match against stored questions"`
	UploadAuthor string `json:"upload_author,omitempty" jsonschema:"only match records of this author"`
	DocName      string `json:"doc_name,omitempty" jsonschema:"only match records of this document"`
	Collection   string `json:"collection,omitempty" jsonschema:"collection to search; defaults to the server default"`
	Limit        int    `json:"limit,omitempty" jsonschema:"maximum number of hits, at most 100 (default 10)"`
}

// IngestDocumentInput defines the input parameters for the ingest_document tool.
type IngestDocumentInput struct {
	// InputDocsPath locates the document: a local path, s3://bucket/key or
	// github://owner/repo/path.
	InputDocsPath string `json:"input_docs_path" jsonschema:"document location: local path, s3://bucket/key or github://owner/repo/path"`
	UploadAuthor  string `json:"upload_author" jsonschema:"author the records are attributed to"`
	DocName       string `json:"doc_name" jsonschema:"logical document name"`
	Collection    string `json:"collection,omitempty" jsonschema:"target collection; defaults to the server default"`
	// UpdateCollection replaces records from an earlier ingestion.
	UpdateCollection bool `json:"update_collection,omitempty" jsonschema:"replace records of an earlier ingestion of the same document"`
}

// CollectionStatusInput defines the input parameters for the collection_status tool.
type CollectionStatusInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"collection to inspect; defaults to the server default"`
	// UploadAuthor, when set, lists that author's documents.
	UploadAuthor string `json:"upload_author,omitempty" jsonschema:"list the documents of this author"`
}

// CollectionStatusOutput describes a collection.
type CollectionStatusOutput struct {
	Collection string `json:"collection"`
	// Exists is false when the collection has not been created yet.
	Exists    bool     `json:"exists"`
	Points    uint64   `json:"points"`
	Dimension int      `json:"dimension"`
	Documents []string `json:"documents,omitempty"`
	Message   string   `json:"message,omitempty"`
}
