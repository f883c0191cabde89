package trend

// Normalize fills Topic from a "hashtag" metadata field for records that
// predate the unified topic field.
func Normalize(records []Record) {
	for i := range records {
		if records[i].Topic != "" {
			continue
		}
		var hashtag string
		if ok, err := records[i].Metadata.Decode("hashtag", &hashtag); ok && err == nil {
			records[i].Topic = hashtag
		}
	}
}

// Rerank assigns contiguous ranks starting at 1 in slice order.
func Rerank(records []Record) {
	for i := range records {
		records[i].Rank = i + 1
	}
}

// Window returns records[offset:offset+limit] as a new slice. A limit <= 0
// means no upper bound. It truncates, never pads.
func Window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}

// Clone returns a copy of r whose Trends slice can be modified freely.
func (r *Result) Clone() *Result {
	c := *r
	c.Trends = append(make([]Record, 0, len(r.Trends)), r.Trends...)
	c.Warnings = append([]string(nil), r.Warnings...)
	c.CacheAgeSeconds = nil
	return &c
}

func (r *SearchResult) Clone() *SearchResult {
	c := *r
	c.Tweets = append(make([]Tweet, 0, len(r.Tweets)), r.Tweets...)
	return &c
}
