package userService

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Techyishu/writerly/cms/docstore"
	"github.com/Techyishu/writerly/models"
)

const (
	// usersInsertFields - fields that should be filled while inserting a new entity
	usersInsertFields = "id, name, email, password, role, created_at"
	// usersSelectFields - fields returned by lookups
	usersSelectFields = "id, name, email, password, role"

	createUsersTable = `CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`
)

var (
	// ErrUserExists - email is already registered
	ErrUserExists = errors.New("user already registered")
	// ErrNoSuchUser - user does not exist
	ErrNoSuchUser = errors.New("no such user")
	// ErrWrongCredentials - unknown email or wrong password
	ErrWrongCredentials = errors.New("wrong credentials")
)

// Migrate - creates users table
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// NormalizeEmail - emails are compared case-insensitively
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Save - saves a new user. Password is hashed with bcrypt before saving
// returns ErrUserExists if the email is taken
func Save(ctx context.Context, db *sql.DB, name, email, password string, role models.UserRole) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:    uuid.New().String(),
		Name:  strings.TrimSpace(name),
		Email: NormalizeEmail(email),
		Role:  role,
	}
	_, err = db.ExecContext(ctx, "insert into users ("+usersInsertFields+") values ($1, $2, $3, $4, $5, $6)",
		user.ID, user.Name, user.Email, string(hashedPassword), string(user.Role), time.Now().UTC())
	if err != nil {
		if docstore.IsUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// ExistsByEmail - check if user with the given email exists
func ExistsByEmail(ctx context.Context, db *sql.DB, email string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, "select count(*) from users where email = $1", NormalizeEmail(email)).Scan(&count)
	return count > 0, err
}

// GetByID - returns ErrNoSuchUser if the user does not exist
func GetByID(ctx context.Context, db *sql.DB, id string) (*models.User, error) {
	user, _, err := scanUser(db.QueryRowContext(ctx, "select "+usersSelectFields+" from users where id = $1", id))
	return user, err
}

// Authenticate - checks email and password
// returns ErrWrongCredentials for unknown email and for wrong password alike
func Authenticate(ctx context.Context, db *sql.DB, email, password string) (*models.User, error) {
	user, hashedPassword, err := scanUser(db.QueryRowContext(ctx,
		"select "+usersSelectFields+" from users where email = $1", NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, ErrNoSuchUser) {
			return nil, ErrWrongCredentials
		}
		return nil, err
	}
	if err = bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return nil, ErrWrongCredentials
	}
	return user, nil
}

// EnsureAdmin - creates the configured admin account unless its email is already registered
// returns true if the account was created
func EnsureAdmin(ctx context.Context, db *sql.DB, name, email, password string) (bool, error) {
	_, err := Save(ctx, db, name, email, password, models.RoleAdmin)
	if errors.Is(err, ErrUserExists) {
		return false, nil
	}
	return err == nil, err
}

func scanUser(row *sql.Row) (*models.User, string, error) {
	var user models.User
	var hashedPassword, role string
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &hashedPassword, &role); err != nil {
		if err == sql.ErrNoRows {
			return nil, "", ErrNoSuchUser
		}
		return nil, "", err
	}
	user.Role = models.UserRole(role)
	return &user, hashedPassword, nil
}
