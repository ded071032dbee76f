package types

import "strings"

// HistoryLine is one affected order line inside a journal entry.
type HistoryLine struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Variant  *string `json:"variant,omitempty"`
}

// HistoryDetails is the structured payload stored with each journal entry.
// The serialized shape ({items: [...], note: "..."}) is consumed verbatim by
// the audit UI and must not change.
type HistoryDetails struct {
	Items []HistoryLine `json:"items,omitempty"`
	Note  *string       `json:"note,omitempty"`
}

// ItemsDetails builds a details payload for the given lines. A blank note is
// omitted from the serialized form.
func ItemsDetails(items []HistoryLine, note string) HistoryDetails {
	details := HistoryDetails{Items: items}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		details.Note = &trimmed
	}
	return details
}

// NoteDetails builds a details payload carrying only a note.
func NoteDetails(note string) HistoryDetails {
	return ItemsDetails(nil, note)
}

// IsEmpty reports whether the payload carries neither lines nor a note.
func (d HistoryDetails) IsEmpty() bool {
	return len(d.Items) == 0 && d.Note == nil
}

// HistoryVariantLabel formats the variant column shown in the audit UI,
// e.g. "M / black". Either part may be blank.
func HistoryVariantLabel(size, color string) *string {
	parts := make([]string, 0, 2)
	if trimmed := strings.TrimSpace(size); trimmed != "" {
		parts = append(parts, trimmed)
	}
	if trimmed := strings.TrimSpace(color); trimmed != "" {
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return nil
	}
	label := strings.Join(parts, " / ")
	return &label
}
