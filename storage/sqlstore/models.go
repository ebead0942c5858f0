package sqlstore

import (
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type entryRecord struct {
	bun.BaseModel `bun:"table:client_storage_entries,alias:cse"`

	ID        string    `bun:"id,pk"`
	EntryKey  string    `bun:"entry_key,notnull,unique"`
	Value     string    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func entryHandlers() repository.ModelHandlers[*entryRecord] {
	return repository.ModelHandlers[*entryRecord]{
		NewRecord: func() *entryRecord {
			return &entryRecord{}
		},
		GetID: func(record *entryRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *entryRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "entry_key"
		},
		GetIdentifierValue: func(record *entryRecord) string {
			if record == nil {
				return ""
			}
			return record.EntryKey
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
