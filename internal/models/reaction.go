package models

// ItemType names the kind of Q&A item a reaction targets.
type ItemType string

const (
	ItemQuestion ItemType = "question"
	ItemComment  ItemType = "comment"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == ItemQuestion || t == ItemComment
}

// AnonymousVoter is the voter id used when no per-user identity is available.
const AnonymousVoter = "anon"

// Reaction is the vote state of one item as seen by one voter.
type Reaction struct {
	Count int  `json:"count"`
	Voted bool `json:"voted"`
}
