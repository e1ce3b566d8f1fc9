package db

import (
	"context"
	"time"
)

const createUser = `
INSERT INTO users (id, email, password_hash, name, roles, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Roles        string
	CreatedAt    time.Time
}

// CreateUser はユーザーを挿入する。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID,
		arg.Email,
		arg.PasswordHash,
		arg.Name,
		arg.Roles,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const getUserByID = `
SELECT id, email, password_hash, name, roles, created_at, updated_at
FROM users
WHERE id = ?
`

// GetUserByID はIDでユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, email, password_hash, name, roles, created_at, updated_at
FROM users
WHERE email = ?
`

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const updateUserName = `
UPDATE users SET name = ?, updated_at = ? WHERE id = ?
`

// UpdateUserNameParams はUpdateUserNameの引数。
type UpdateUserNameParams struct {
	ID        string
	Name      string
	UpdatedAt time.Time
}

// UpdateUserName はユーザーの表示名を更新し、更新した行数を返す。
func (q *Queries) UpdateUserName(ctx context.Context, arg UpdateUserNameParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateUserName, arg.Name, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
