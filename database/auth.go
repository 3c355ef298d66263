package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"roadalert/models"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user with this email or username already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// AuthService handles registration, login, token validation and the
// reputation counter. It also serves as the engine's ReputationSink.
type AuthService struct {
	db        *sql.DB
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(db *sql.DB, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Register creates a user and returns it with a fresh token.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, string, error) {
	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ? OR username = ?`,
		req.Email, req.Username).Scan(&existing)
	if err != nil {
		return nil, "", storeErr("check existing user", err)
	}
	if existing > 0 {
		return nil, "", ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, reputation_score) VALUES (?, ?, ?, 0)`,
		req.Username, req.Email, string(hash))
	if err != nil {
		// The COUNT check above is not atomic with the insert; the
		// loser of a registration race hits the unique key here.
		if isDuplicateKey(err) {
			return nil, "", ErrUserExists
		}
		return nil, "", storeErr("insert user", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, "", storeErr("insert user", err)
	}

	user, err := s.Profile(ctx, id)
	if err != nil {
		return nil, "", err
	}
	token, err := s.generateToken(id)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login authenticates with email and password. The error never
// distinguishes an unknown email from a wrong password.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.User, string, error) {
	var (
		user models.User
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, reputation_score, created_at
		FROM users WHERE email = ?`, req.Email).
		Scan(&user.ID, &user.Username, &user.Email, &hash, &user.ReputationScore, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", storeErr("find user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// Profile loads a user by ID.
func (s *AuthService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, reputation_score, created_at FROM users WHERE id = ?`, userID).
		Scan(&user.ID, &user.Username, &user.Email, &user.ReputationScore, &user.CreatedAt)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return &user, nil
}

// IncrementReputation implements lifecycle.ReputationSink.
func (s *AuthService) IncrementReputation(ctx context.Context, userID int64, delta int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET reputation_score = reputation_score + ? WHERE id = ?`, delta, userID)
	if err != nil {
		return storeErr("increment reputation", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		log.Errorf("Expected to credit one user, %d were updated", n)
	}
	return nil
}

// ValidateToken parses a bearer token and returns the user ID it
// identifies.
func (s *AuthService) ValidateToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	switch id := claims["userId"].(type) {
	case float64:
		return int64(id), nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, ErrInvalidToken
		}
		return n, nil
	default:
		return 0, ErrInvalidToken
	}
}

// isDuplicateKey reports whether err is MySQL error 1062
// (ER_DUP_ENTRY), a unique key violation.
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

func (s *AuthService) generateToken(userID int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"exp":    time.Now().Add(s.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
