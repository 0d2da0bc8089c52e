package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// CardPatch is the inbound mutation body for both card creation and partial
// updates. Absent fields keep their prior value, so everything is either a
// pointer or raw JSON that distinguishes "absent" from "null".
type CardPatch struct {
	Title    *string         `json:"title"`
	Status   *Status         `json:"status"`
	Assignee *string         `json:"assignee"`
	Priority *Priority       `json:"priority"`
	Notes    *string         `json:"notes"`
	DueAt    json.RawMessage `json:"due_at"`
	Tags     json.RawMessage `json:"tags"`
}

// DueAtValue reports whether due_at was present in the request and, if so, its
// value (nil for an explicit null or anything non-numeric).
func (p *CardPatch) DueAtValue() (int64, bool, bool) {
	if len(p.DueAt) == 0 {
		return 0, false, false
	}
	var ms int64
	if err := json.Unmarshal(p.DueAt, &ms); err != nil {
		return 0, false, true
	}
	return ms, true, true
}

// TagsValue reports whether tags was present and its normalized form.
// The client may send a native array or a JSON-encoded string of one;
// anything malformed degrades to an empty list rather than failing the request.
func (p *CardPatch) TagsValue() (datatypes.JSON, bool) {
	if len(p.Tags) == 0 {
		return nil, false
	}
	return NormalizeTags(p.Tags), true
}

// NormalizeTags coerces raw tag input to a JSON array of strings.
func NormalizeTags(raw json.RawMessage) datatypes.JSON {
	empty := datatypes.JSON([]byte("[]"))
	if len(raw) == 0 {
		return empty
	}

	var tags []string
	if err := json.Unmarshal(raw, &tags); err == nil {
		return marshalTags(tags)
	}

	// String variant: a JSON string whose contents are themselves a JSON array.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &tags); err == nil {
			return marshalTags(tags)
		}
	}
	return empty
}

func marshalTags(tags []string) datatypes.JSON {
	if tags == nil {
		tags = []string{}
	}
	out, err := json.Marshal(tags)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(out)
}
