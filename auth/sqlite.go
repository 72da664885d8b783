package auth

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SQLiteChecker validates against a users table with bcrypt password
// hashes: CREATE TABLE users (username TEXT PRIMARY KEY, password TEXT).
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker opens the credential database at path.
func NewSQLiteChecker(path string) (*SQLiteChecker, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteChecker{db: db}, nil
}

// Close releases the database connection.
func (sq *SQLiteChecker) Close() error {
	return sq.db.Close()
}

func (sq *SQLiteChecker) CheckUser(username string) error {
	var exists bool
	err := sq.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", username).Scan(&exists)
	if err != nil {
		zap.L().Error("Credential lookup failed", zap.Error(err))
		return ErrBadCredentials
	}
	if !exists {
		return ErrBadCredentials
	}
	return nil
}

func (sq *SQLiteChecker) CheckPassword(username, password string) error {
	var hashed string
	err := sq.db.QueryRow("SELECT password FROM users WHERE username = ?", username).Scan(&hashed)
	if err != nil {
		if err == sql.ErrNoRows {
			// Burn the same time as a real comparison.
			_, _ = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		} else {
			zap.L().Error("Credential lookup failed", zap.Error(err))
		}
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// CreateUser stores a new user with a bcrypt-hashed password.
func (sq *SQLiteChecker) CreateUser(username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = sq.db.Exec("INSERT INTO users (username, password) VALUES (?, ?)", username, hashed)
	return err
}

// DeleteUser removes a user.
func (sq *SQLiteChecker) DeleteUser(username string) error {
	_, err := sq.db.Exec("DELETE FROM users WHERE username = ?", username)
	return err
}
