// Package txn provides the opaque transaction identity used across the
// lock manager and buffer pool. The storage core never inspects a
// TransactionID beyond equality; it only needs a unique token per
// in-flight transaction.
package txn

import "github.com/google/uuid"

// ID is an opaque, unique identity for a transaction. Two IDs are the
// same transaction iff they compare equal; the storage core never
// derives meaning from their bits.
type ID struct {
	v uuid.UUID
}

// New allocates a fresh transaction identity.
func New() ID {
	return ID{v: uuid.New()}
}

// String renders the identity for logging and error messages.
func (t ID) String() string {
	return t.v.String()
}

// Zero reports whether t is the zero value, i.e. never assigned by New.
func (t ID) Zero() bool {
	return t.v == uuid.UUID{}
}
