package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// FiltersPlaceholder is shown when a citation carries no usable filters mapping.
	FiltersPlaceholder   = "—"
	RecordsNotApplicable = "N/A"
	UnknownDataset       = "Unknown dataset"
)

// FormatFilters renders a filters mapping as "k1=v1, k2=v2". Ordered mappings keep
// their insertion order, plain Go maps are rendered in sorted key order. Nil,
// non-mapping values, and anything that fails to format render as FiltersPlaceholder.
func FormatFilters(v interface{}) (ret string) {
	defer func() {
		if r := recover(); r != nil {
			ret = FiltersPlaceholder
		}
	}()

	switch f := v.(type) {
	case *Filters:
		if f == nil {
			return FiltersPlaceholder
		}
		parts := make([]string, 0, f.Len())
		for pair := f.Oldest(); pair != nil; pair = pair.Next() {
			parts = append(parts, pair.Key+"="+formatValue(pair.Value))
		}
		return strings.Join(parts, ", ")

	case map[string]interface{}:
		if f == nil {
			return FiltersPlaceholder
		}
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+formatValue(f[k]))
		}
		return strings.Join(parts, ", ")

	case map[string]string:
		if f == nil {
			return FiltersPlaceholder
		}
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+f[k])
		}
		return strings.Join(parts, ", ")

	default:
		return FiltersPlaceholder
	}
}

func formatValue(v interface{}) string {
	switch v_ := v.(type) {
	case nil:
		return "null"
	case string:
		return v_
	case float64:
		return strconv.FormatFloat(v_, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v_)
	case int:
		return strconv.Itoa(v_)
	case int64:
		return strconv.FormatInt(v_, 10)
	default:
		// nested objects and arrays render as compact JSON
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v_); err != nil {
			return FiltersPlaceholder
		}
		return strings.TrimSuffix(buf.String(), "\n")
	}
}

func FormatRecords(records *int64) string {
	if records == nil {
		return RecordsNotApplicable
	}
	return strconv.FormatInt(*records, 10)
}

func DisplayDataset(name string) string {
	if strings.TrimSpace(name) == "" {
		return UnknownDataset
	}
	return name
}

// FormatCitation renders a single citation on one line.
func FormatCitation(c SourceCitation) string {
	ret := fmt.Sprintf("Dataset: %s | Filters: %s | Records: %s",
		DisplayDataset(c.Dataset),
		FormatFilters(c.FiltersApplied),
		FormatRecords(c.RecordsRetrieved),
	)
	if c.URL != "" {
		ret += " | " + c.URL
	}
	return ret
}
