package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/dbx"
	"github.com/dmitrijs2005/gophusers/internal/models"
	"github.com/google/uuid"
)

// DB is what the Postgres repository needs: plain queries plus transactions.
type DB interface {
	dbx.DBTX
	dbx.TxBeginner
}

type PostgresRepository struct {
	db  DB
	now func() time.Time
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const selectUser = `SELECT u.id, u.provider, u.subject, u.email, u.name, u.picture, u.is_active,
       u.created_at, u.updated_at,
       p.id, p.address, p.phone, p.bio, p.created_at, p.updated_at
  FROM users u
  LEFT JOIN user_profiles p ON p.user_id = u.id`

const (
	queryInsertUser = `INSERT INTO users (id, provider, subject, email, name, picture, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (provider, subject) DO NOTHING`

	queryInsertProfile = `INSERT INTO user_profiles (id, user_id, address, phone, bio, created_at, updated_at)
VALUES ($1, $2, '', '', '', $3, $3)
ON CONFLICT (user_id) DO NOTHING`

	queryUserByID      = selectUser + "\n WHERE u.id = $1"
	queryUserBySubject = selectUser + "\n WHERE u.provider = $1 AND u.subject = $2"

	queryLockUser = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	queryUpdateAccount = `UPDATE users
   SET name = COALESCE($2, name),
       picture = COALESCE($3, picture),
       updated_at = $4
 WHERE id = $1`

	queryUpsertProfile = `INSERT INTO user_profiles (id, user_id, address, phone, bio, created_at, updated_at)
VALUES ($1, $2, COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), $6, $6)
ON CONFLICT (user_id) DO UPDATE
   SET address = COALESCE($3, user_profiles.address),
       phone = COALESCE($4, user_profiles.phone),
       bio = COALESCE($5, user_profiles.bio),
       updated_at = $6`

	queryProfileByUser = `SELECT id, user_id, address, phone, bio, created_at, updated_at
  FROM user_profiles WHERE user_id = $1`
)

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	var out *models.User
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := r.now()
		id := user.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, queryInsertUser,
			id, user.Provider, user.Subject, user.Email, user.Name, user.Picture, true, now); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		existing, err := scanUser(tx.QueryRowContext(ctx, queryUserBySubject, user.Provider, user.Subject))
		if err != nil {
			return err
		}
		if existing.Profile.ID == "" {
			if _, err := tx.ExecContext(ctx, queryInsertProfile, uuid.NewString(), existing.ID, now); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			if existing, err = scanUser(tx.QueryRowContext(ctx, queryUserByID, existing.ID)); err != nil {
				return err
			}
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) GetBySubject(ctx context.Context, provider, subject string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, queryUserBySubject, provider, subject))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, queryUserByID, id))
}

func (r *PostgresRepository) EnsureProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if _, err := r.db.ExecContext(ctx, queryInsertProfile, uuid.NewString(), userID, r.now()); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	p := &models.Profile{}
	err := r.db.QueryRowContext(ctx, queryProfileByUser, userID).
		Scan(&p.ID, &p.UserID, &p.Address, &p.Phone, &p.Bio, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// UpdateAccount and UpdateProfile lock the user row first, so concurrent
// writers for one user run one after another.
func (r *PostgresRepository) UpdateAccount(ctx context.Context, id string, upd models.AccountUpdate) (*models.User, error) {
	return r.locked(ctx, id, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, queryUpdateAccount, id, upd.Name, upd.Picture, r.now())
		return err
	})
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	return r.locked(ctx, id, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, queryUpsertProfile,
			uuid.NewString(), id, upd.Address, upd.Phone, upd.Bio, r.now())
		return err
	})
}

func (r *PostgresRepository) locked(ctx context.Context, id string, fn func(ctx context.Context, tx dbx.DBTX) error) (*models.User, error) {
	var out *models.User
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var locked string
		if err := tx.QueryRowContext(ctx, queryLockUser, id).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		if err := fn(ctx, tx); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		u, err := scanUser(tx.QueryRowContext(ctx, queryUserByID, id))
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var (
		pID, pAddress, pPhone, pBio sql.NullString
		pCreated, pUpdated          sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Provider, &u.Subject, &u.Email, &u.Name, &u.Picture, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt,
		&pID, &pAddress, &pPhone, &pBio, &pCreated, &pUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if pID.Valid {
		u.Profile = models.Profile{
			ID:        pID.String,
			UserID:    u.ID,
			Address:   pAddress.String,
			Phone:     pPhone.String,
			Bio:       pBio.String,
			CreatedAt: pCreated.Time,
			UpdatedAt: pUpdated.Time,
		}
	}
	return u, nil
}
