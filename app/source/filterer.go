package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lysyi3m/trend-comb/app/trend"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run drops the records rejected by the source filters and renumbers the
// survivors contiguously.
func (f *Filterer) Run(records []trend.Record, config *Config) []trend.Record {
	if len(config.Filters) == 0 {
		return records
	}

	kept := make([]trend.Record, 0, len(records))
	for _, record := range records {
		if isFiltered, reason := f.applyFilters(record, config.Filters); isFiltered {
			slog.Debug("Trend filtered", "source", config.Name, "topic", record.Topic, "reason", reason)
			continue
		}
		kept = append(kept, record)
	}

	trend.Rerank(kept)
	return kept
}

func (f *Filterer) applyFilters(record trend.Record, filters []Filter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(record, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(record trend.Record, field string) string {
	switch field {
	case "topic":
		return record.Topic
	case "metadata":
		data, err := json.Marshal(record.Metadata)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}
