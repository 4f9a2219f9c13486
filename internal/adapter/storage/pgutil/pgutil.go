package pgutil

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/burenotti/go_vitals_backend/internal/adapter/storage"
	"github.com/burenotti/go_vitals_backend/internal/domain"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// PageSize bounds how many rows go into a single batched statement. Chunks
// exist for throughput only; atomicity comes from the enclosing transaction.
const PageSize = 100

type BasePostgresStorage struct {
	DB     storage.DBContext
	seenMu sync.Mutex
	seen   []domain.EventSource
}

func NewBasePostgresStorage(db storage.DBContext) *BasePostgresStorage {
	return &BasePostgresStorage{
		DB: db,
	}
}

func (s *BasePostgresStorage) MarkSeen(src domain.EventSource) {
	s.seenMu.Lock()
	s.seen = append(s.seen, src)
	s.seenMu.Unlock()
}

func (s *BasePostgresStorage) CollectEvents() []domain.Event {
	var events []domain.Event
	for _, src := range s.seen {
		events = append(events, src.PopEvents()...)
	}
	s.clearSeen()
	return events
}

func (s *BasePostgresStorage) Close() {
	s.clearSeen()
}

func (s *BasePostgresStorage) clearSeen() {
	s.seenMu.Lock()
	s.seen = nil
	s.seenMu.Unlock()
}

func ViolatesConstraint(err error, constraintName string) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) &&
		pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) &&
		pgErr.ConstraintName == constraintName
}

func Peek[K comparable, V any](items map[K]V, defaultValue ...V) V {
	for _, item := range items {
		return item
	}

	if len(defaultValue) != 0 {
		return defaultValue[0]
	}
	return *new(V)
}

func PeekOrErr[K comparable, V any](items map[K]V, err, notFoundErr error) (V, error) {
	if err != nil {
		return *new(V), err
	}

	if len(items) == 0 {
		return *new(V), notFoundErr
	}

	return Peek(items), nil
}

func AssertUpdated(res sql.Result, err error, notUpdatedError error) error {
	if err != nil {
		return storage.InternalError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storage.InternalError(err)
	}

	if affected == 0 {
		return notUpdatedError
	}
	return nil
}
