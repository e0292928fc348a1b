package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	pkgerrors "github.com/pkg/errors"

	"github.com/deppfellow/user-registry/internal/database"
	"github.com/deppfellow/user-registry/internal/model/user"
	"github.com/deppfellow/user-registry/internal/sqlerr"
)

const (
	createUsersTable = `CREATE TABLE IF NOT EXISTS users (
    id         BIGINT PRIMARY KEY,
    name       TEXT   NOT NULL,
    birth_date DATE   NOT NULL
)`

	insertUser = `INSERT INTO users (id, name, birth_date) VALUES ($1, $2, $3)`

	selectUserByID = `SELECT id, name, birth_date FROM users WHERE id = $1`

	selectUsers = `SELECT id, name, birth_date FROM users`
)

// UserRepository stores users in the users table.
//
// Every method runs through database.Acquire, so calls are serialized on
// the shared connection. Reads run in autocommit mode; Insert uses an
// explicit transaction and rolls it back on any failure.
type UserRepository struct {
	db *database.Database
}

func NewUserRepository(db *database.Database) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureSchema creates the users table when it does not exist yet. It is
// safe to call on every start.
func (r *UserRepository) EnsureSchema(ctx context.Context) error {
	return r.db.Acquire(ctx, func(ctx context.Context, conn database.Conn) error {
		if _, err := conn.Exec(ctx, createUsersTable); err != nil {
			return storageError("ensure schema", err)
		}
		return nil
	})
}

// Insert stores u. It returns *DuplicateKeyError when the ID is taken and
// *StorageError for any other failure; the transaction is rolled back in
// both cases.
func (r *UserRepository) Insert(ctx context.Context, u user.User) error {
	return r.db.Acquire(ctx, func(ctx context.Context, conn database.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return storageError("begin insert", err)
		}

		if _, err := tx.Exec(ctx, insertUser, u.ToStorage().Args()...); err != nil {
			rollback(tx)

			if sqlerr.IsUniqueViolation(err) {
				return &DuplicateKeyError{ID: u.ID}
			}
			return storageError("insert user", err)
		}

		if err := tx.Commit(ctx); err != nil {
			rollback(tx)
			return storageError("commit insert", err)
		}

		return nil
	})
}

// FindByID returns the user with the given ID. found is false, with a nil
// error, when no row matches.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (u user.User, found bool, err error) {
	err = r.db.Acquire(ctx, func(ctx context.Context, conn database.Conn) error {
		var row user.Row

		scanErr := conn.QueryRow(ctx, selectUserByID, id).Scan(&row.ID, &row.Name, &row.BirthDate)
		switch {
		case errors.Is(scanErr, pgx.ErrNoRows):
			return nil
		case scanErr != nil:
			return storageError("find user", scanErr)
		}

		u, found = user.FromStorage(row), true
		return nil
	})

	return u, found, err
}

// FindAll returns every stored user, in no particular order. An empty
// table yields an empty, non-nil slice.
func (r *UserRepository) FindAll(ctx context.Context) ([]user.User, error) {
	users := make([]user.User, 0)

	err := r.db.Acquire(ctx, func(ctx context.Context, conn database.Conn) error {
		rows, err := conn.Query(ctx, selectUsers)
		if err != nil {
			return storageError("list users", err)
		}
		defer rows.Close()

		for rows.Next() {
			var row user.Row
			if err := rows.Scan(&row.ID, &row.Name, &row.BirthDate); err != nil {
				return storageError("scan user", err)
			}
			users = append(users, user.FromStorage(row))
		}

		if err := rows.Err(); err != nil {
			return storageError("list users", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return users, nil
}

// rollback runs on a fresh context so a unit of work that hit the query
// timeout still releases the transaction before the connection is handed
// to the next caller.
func rollback(tx pgx.Tx) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = tx.Rollback(ctx)
}

func storageError(op string, err error) error {
	return pkgerrors.WithStack(&StorageError{Op: op, Err: err})
}
