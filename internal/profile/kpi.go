package profile

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Metric is one tracked number. Current and Target are nil when unknown.
type Metric struct {
	Unit    string   `json:"unit"`
	Current *float64 `json:"current"`
	Target  *float64 `json:"target"`
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	var raw struct {
		Unit    string          `json:"unit"`
		Current json.RawMessage `json:"current"`
		Target  json.RawMessage `json:"target"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metric{Unit: raw.Unit}
	if f, ok := parseNumber(raw.Current); ok {
		m.Current = &f
	}
	if f, ok := parseNumber(raw.Target); ok {
		m.Target = &f
	}
	return nil
}

// KPISnapshot maps category name to metric name to metric.
type KPISnapshot map[string]map[string]Metric

// UnmarshalJSON accepts the flat mapping as well as the browser store's
// {"categories":{C:{"metrics":{...}}}} wrapping.
func (k *KPISnapshot) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*k = nil
		return nil
	}

	var wrapped struct {
		Categories map[string]struct {
			Metrics map[string]Metric `json:"metrics"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Categories != nil {
		out := make(KPISnapshot, len(wrapped.Categories))
		for cat, c := range wrapped.Categories {
			out[cat] = c.Metrics
			if out[cat] == nil {
				out[cat] = map[string]Metric{}
			}
		}
		*k = out
		return nil
	}

	var flat map[string]map[string]Metric
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*k = flat
	return nil
}

// Has reports whether the snapshot tracks the given category.
func (k KPISnapshot) Has(category string) bool {
	_, ok := k[category]
	return ok
}

// Categories returns the category names in sorted order.
func (k KPISnapshot) Categories() []string {
	out := make([]string, 0, len(k))
	for c := range k {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
