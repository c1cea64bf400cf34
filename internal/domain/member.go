package domain

// Member represents a connection's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	Connection ConnectionID
	// ProducerID is the producer announced on join, may be empty.
	ProducerID ProducerID
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id ConnectionID, producer ProducerID) *Member {
	return &Member{Connection: id, ProducerID: producer}
}
