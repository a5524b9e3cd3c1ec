// Package identity implements the deterministic half of sender-identity
// resolution: preprocessing raw "From" strings, local-part pattern
// detection, service-address classification, honorific mapping, result
// sanitization and status classification.
package identity

import "time"

// Genre is the binary salutation attribute inferred from honorifics or
// majority vote. It is a salutation hint, not a demographic claim.
type Genre string

const (
	GenreMr Genre = "Mr."
	GenreMs Genre = "Ms."
)

// Status is the extraction status taxonomy for a message record.
type Status string

const (
	StatusUnprocessed   Status = "unprocessed"
	StatusHigh          Status = "extracted_high"
	StatusMedium        Status = "extracted_medium"
	StatusLow           Status = "extracted_low"
	StatusNotApplicable Status = "not_applicable"
	StatusReviewed      Status = "reviewed"
)

// IdentityStatus is the lifecycle status of a canonical identity.
type IdentityStatus string

const (
	IdentityActive  IdentityStatus = "active"
	IdentityDeleted IdentityStatus = "deleted"
)

// ExtractionResult holds the structured fields derived from one raw
// sender identity. Name1Pre/Name2Pre are single-letter initials taken
// from the email local part when the extracted name disagrees with it;
// Name3 is an organization label computed only for non-personal
// addresses.
type ExtractionResult struct {
	Name1          string  `json:"name1,omitempty"`
	Name2          string  `json:"name2,omitempty"`
	Name1Pre       string  `json:"name1pre,omitempty"`
	Name2Pre       string  `json:"name2pre,omitempty"`
	Name3          string  `json:"name3,omitempty"`
	Genre          Genre   `json:"genre,omitempty"`
	Email          string  `json:"email,omitempty"`
	Domain         string  `json:"domain,omitempty"`
	IsPersonal     bool    `json:"is_personal"`
	Confidence     float64 `json:"confidence"`
	Status         Status  `json:"extraction_status"`
	Reasoning      string  `json:"reasoning,omitempty"`
	ChainOfThought string  `json:"chain_of_thought,omitempty"`
}

// MessageRecord is one inbound message's persisted sender identity.
// IdentityRef is nil until the record is linked to a canonical identity
// by the applier.
type MessageRecord struct {
	ID                    string
	RawFrom               string
	Email                 string
	Domain                string
	LocalPart             string
	IdentityRef           *string
	Extraction            ExtractionResult
	DisplayClassification string
	Version               int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Identity is the canonical, deduplicated person/organization record
// that message records resolve to. BuyerRef/ProducerRef point at the
// upstream sales entities this identity trades as.
type Identity struct {
	ID          string
	Name        string
	Genre       Genre
	Email       string
	Email2      string
	Domain      string
	Domain2     string
	BuyerRef    *string
	ProducerRef *string
	Status      IdentityStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
