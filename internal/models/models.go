package models

import (
	"time"
)

type User struct {
	ID           string    `gorm:"primaryKey"               json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Disabled     bool      `gorm:"default:false"            json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store struct {
	ID          string    `gorm:"primaryKey"               json:"id"`
	Name        string    `gorm:"not null"                 json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `gorm:"index;not null"           json:"owner_id"`
	CreatedAt   time.Time `gorm:"index"                    json:"created_at"`
}

// Product keeps two name fields: Name is the lowercased uniqueness key
// within a (store, owner) scope, DisplayName preserves the entered casing.
type Product struct {
	ID          string    `gorm:"primaryKey"               json:"id"`
	StoreID     string    `gorm:"index;not null"           json:"store_id"`
	OwnerID     string    `gorm:"index;not null"           json:"owner_id"`
	Name        string    `gorm:"not null"                 json:"name"`
	DisplayName string    `gorm:"not null"                 json:"display_name"`
	Price       float64   `gorm:"not null"                 json:"price"`
	Quantity    uint      `json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
}

// Log is append-only: rows are written after successful mutations and are
// never updated, only removed when their store is deleted.
type Log struct {
	ID        string    `gorm:"primaryKey"               json:"id"`
	StoreID   string    `gorm:"index;not null"           json:"store_id"`
	OwnerID   string    `gorm:"index;not null"           json:"owner_id"`
	Action    string    `gorm:"not null"                 json:"action"`
	Timestamp time.Time `gorm:"index"                    json:"timestamp"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    string `gorm:"index;not null"      json:"user_id"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}
