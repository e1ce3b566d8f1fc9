package db

import "time"

// User はusersテーブルの行。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	// Roles はJSON配列の文字列。
	Roles     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
