package storage

import (
	"cmp"
	"slices"
	"time"
)

// SortRecords orders records by key, breaking ties by doc_name and then
// index_id so pagination is stable.
func SortRecords(records []Record, key OrderBy, descending bool) {
	slices.SortStableFunc(records, func(a, b Record) int {
		c := compareBy(a.Payload, b.Payload, key)
		if c == 0 {
			c = cmp.Or(
				cmp.Compare(a.Payload.DocName, b.Payload.DocName),
				cmp.Compare(a.Payload.IndexID, b.Payload.IndexID),
				cmp.Compare(a.ID, b.ID),
			)
		}
		if descending {
			return -c
		}
		return c
	})
}

func compareBy(a, b Payload, key OrderBy) int {
	switch key {
	case OrderByDocName:
		return cmp.Compare(a.DocName, b.DocName)
	case OrderByIngestedAt:
		return a.IngestedAt.Compare(b.IngestedAt)
	default:
		return cmp.Compare(a.IndexID, b.IndexID)
	}
}

// Paginate returns the window [offset, offset+limit) of records. A limit of
// zero or less returns everything from offset.
func Paginate(records []Record, offset, limit int) []Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []Record{}
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return records[offset:end]
}

// LatestIngestion keeps, for every (upload_author, doc_name), only the items
// written by the newest run. Runs are ordered by ingestion_timestamp, then
// ingestion_id. Input order is preserved.
func LatestIngestion[T any](items []T, payload func(T) Payload) []T {
	type identity struct{ author, doc string }
	type run struct {
		at time.Time
		id string
	}

	latest := make(map[identity]run)
	for _, it := range items {
		p := payload(it)
		key := identity{p.UploadAuthor, p.DocName}
		cur, ok := latest[key]
		if !ok || p.IngestedAt.After(cur.at) || (p.IngestedAt.Equal(cur.at) && p.IngestionID > cur.id) {
			latest[key] = run{at: p.IngestedAt, id: p.IngestionID}
		}
	}

	out := items[:0:0]
	for _, it := range items {
		p := payload(it)
		if latest[identity{p.UploadAuthor, p.DocName}].id == p.IngestionID {
			out = append(out, it)
		}
	}
	return out
}

func recordPayload(r Record) Payload { return r.Payload }

// page sorts matches and cuts the requested window.
func page(matches []Record, req SearchRequest) *SearchPage {
	if req.LatestOnly {
		matches = LatestIngestion(matches, recordPayload)
	}
	SortRecords(matches, req.OrderBy, req.Descending)
	return &SearchPage{
		Total:   len(matches),
		Records: Paginate(matches, req.Offset, req.Limit),
	}
}
