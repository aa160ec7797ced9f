package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedRecord is a bun model whose primary key is a string column named id.
type keyedRecord[R any] interface {
	*R
	primaryKey() *string
}

func (r *subscriptionRecord) primaryKey() *string { return &r.ID }

func (r *deliveryRecord) primaryKey() *string { return &r.ID }

// recordHandlers builds go-repository-bun handlers for string keyed records.
// Ids are stored as text so a malformed value reads back as uuid.Nil.
func recordHandlers[R any, P keyedRecord[R]]() repository.ModelHandlers[P] {
	key := func(record P) string {
		if record == nil {
			return ""
		}
		return strings.TrimSpace(*record.primaryKey())
	}
	return repository.ModelHandlers[P]{
		NewRecord: func() P { return P(new(R)) },
		GetID: func(record P) uuid.UUID {
			id, err := uuid.Parse(key(record))
			if err != nil {
				return uuid.Nil
			}
			return id
		},
		SetID: func(record P, id uuid.UUID) {
			if record != nil {
				*record.primaryKey() = id.String()
			}
		},
		GetIdentifier:      func() string { return "id" },
		GetIdentifierValue: key,
	}
}
