// Package queue implements the reconciliation queue: structural change
// proposals reviewed by a human before a transactional applier commits
// them.
package queue

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Kind discriminates the proposal sum type.
type Kind string

const (
	KindLink       Kind = "link"
	KindCreateUser Kind = "create_user"
	KindMerge      Kind = "merge"
	KindSplit      Kind = "split"
)

// Status is the queue entry lifecycle. Pending entries can be approved
// or rejected; approved entries become applied. Rejected and applied
// are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusApplied  Status = "applied"
)

// ErrInvalidTransition is returned when an entry is not in the state
// required for the requested transition.
var ErrInvalidTransition = eris.New("queue: invalid status transition")

// ErrPendingExists is returned when a record already has a pending
// entry; at most one proposal per record may await review.
var ErrPendingExists = eris.New("queue: pending entry already exists for record")

// LinkProposal attaches a message record to an existing identity.
type LinkProposal struct {
	IdentityID string `json:"identity_id"`
}

// CreateUserProposal creates a new identity from the record's
// extraction and links the record to it.
type CreateUserProposal struct {
	Name        string  `json:"name"`
	Genre       string  `json:"genre,omitempty"`
	Email       string  `json:"email"`
	Domain      string  `json:"domain,omitempty"`
	BuyerRef    *string `json:"buyer_ref,omitempty"`
	ProducerRef *string `json:"producer_ref,omitempty"`
}

// MergeProposal folds the source identity into the target: records are
// repointed, secondary email/domain slots inherited, and the source
// marked deleted.
type MergeProposal struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// SplitProposal carves the listed records out of the source identity
// into a new one that inherits the source's domain and sales refs.
type SplitProposal struct {
	SourceID  string   `json:"source_id"`
	NewName   string   `json:"new_name"`
	NewEmail  string   `json:"new_email"`
	RecordIDs []string `json:"record_ids"`
}

// Proposal is the closed sum over the four structural change kinds.
// Exactly one field is set, matching the entry's Kind.
type Proposal struct {
	Link       *LinkProposal       `json:"link,omitempty"`
	CreateUser *CreateUserProposal `json:"create_user,omitempty"`
	Merge      *MergeProposal      `json:"merge,omitempty"`
	Split      *SplitProposal      `json:"split,omitempty"`
}

// Kind returns the discriminant of the set variant.
func (p Proposal) Kind() (Kind, error) {
	switch {
	case p.Link != nil:
		return KindLink, nil
	case p.CreateUser != nil:
		return KindCreateUser, nil
	case p.Merge != nil:
		return KindMerge, nil
	case p.Split != nil:
		return KindSplit, nil
	default:
		return "", eris.New("queue: empty proposal")
	}
}

// Validate checks that exactly one variant is set and its payload is
// complete.
func (p Proposal) Validate() error {
	var set int
	if p.Link != nil {
		set++
		if p.Link.IdentityID == "" {
			return eris.New("queue: link proposal missing identity id")
		}
	}
	if p.CreateUser != nil {
		set++
		if p.CreateUser.Name == "" || p.CreateUser.Email == "" {
			return eris.New("queue: create_user proposal missing name or email")
		}
	}
	if p.Merge != nil {
		set++
		if p.Merge.SourceID == "" || p.Merge.TargetID == "" {
			return eris.New("queue: merge proposal missing source or target id")
		}
		if p.Merge.SourceID == p.Merge.TargetID {
			return eris.New("queue: merge source and target are the same identity")
		}
	}
	if p.Split != nil {
		set++
		if p.Split.SourceID == "" || len(p.Split.RecordIDs) == 0 {
			return eris.New("queue: split proposal missing source id or records")
		}
	}
	if set != 1 {
		return eris.Errorf("queue: proposal must set exactly one variant, got %d", set)
	}
	return nil
}

func (p Proposal) marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	return data, eris.Wrap(err, "queue: marshal proposal")
}

func unmarshalProposal(data []byte) (Proposal, error) {
	var p Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return Proposal{}, eris.Wrap(err, "queue: unmarshal proposal")
	}
	return p, nil
}
