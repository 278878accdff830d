package domain

import "time"

// Alert is one hazard alert record, normalized across the point and zone
// lookup paths. ID is the dedup key; upstream does not guarantee the
// optional fields on every record.
type Alert struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	Headline    *string    `json:"headline,omitempty"`
	Severity    *string    `json:"severity,omitempty"`
	Description *string    `json:"description,omitempty"`
	Instruction *string    `json:"instruction,omitempty"`
	AreaDesc    *string    `json:"area_desc,omitempty"`
	Effective   *time.Time `json:"effective,omitempty"`
	Expires     *time.Time `json:"expires,omitempty"`

	// Synthesized marks records whose upstream ID was missing. The ID was
	// minted locally so the record is never dropped, but it cannot dedupe
	// against future responses.
	Synthesized bool `json:"synthesized,omitempty"`
}
