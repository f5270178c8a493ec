package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
)

type fakeUsers struct {
	byEmail map[string]model.User
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func newAuthService(t *testing.T, users *fakeUsers) *AuthService {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	// Closed port: session paths are not under test here.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return NewAuthService(cfg, users, rdb)
}

func TestHashAndCheckPassword(t *testing.T) {
	svc := newAuthService(t, &fakeUsers{})

	hash, err := svc.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash equals plaintext")
	}

	if err := svc.CheckPassword(hash, "s3cret-pass"); err != nil {
		t.Errorf("CheckPassword with correct password: %v", err)
	}
	if err := svc.CheckPassword(hash, "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("CheckPassword with wrong password = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginTeacherIssuesTypedToken(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	users := &fakeUsers{byEmail: map[string]model.User{
		"teacher@example.com": {
			ID:           7,
			Email:        "teacher@example.com",
			PasswordHash: string(hash),
			Role:         model.RoleTeacher,
		},
	}}
	svc := newAuthService(t, users)

	token, user, err := svc.Login(context.Background(), "teacher@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != 7 {
		t.Errorf("user ID = %d, want 7", user.ID)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TokenType != TokenTypeTeacher {
		t.Errorf("token type = %s, want teacher", claims.TokenType)
	}
	if claims.UserID != 7 {
		t.Errorf("claims user ID = %d, want 7", claims.UserID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	users := &fakeUsers{byEmail: map[string]model.User{
		"teacher@example.com": {
			ID:           7,
			Email:        "teacher@example.com",
			PasswordHash: string(hash),
			Role:         model.RoleTeacher,
		},
	}}
	svc := newAuthService(t, users)

	if _, _, err := svc.Login(context.Background(), "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email login = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(context.Background(), "teacher@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password login = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateTokenRejectsForgedAndExpired(t *testing.T) {
	svc := newAuthService(t, &fakeUsers{})

	// Token signed under a different secret.
	otherCfg := &config.Config{JWTSecret: "other-secret", JWTExpiry: time.Hour}
	other := NewAuthService(otherCfg, &fakeUsers{}, svc.rdb)
	forged, err := other.GenerateTeacherToken(1)
	if err != nil {
		t.Fatalf("GenerateTeacherToken: %v", err)
	}
	if _, err := svc.ValidateToken(forged); err == nil {
		t.Error("forged token validated")
	}

	// Token already past its expiry.
	expiredCfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: -time.Minute}
	expired := NewAuthService(expiredCfg, &fakeUsers{}, svc.rdb)
	tok, err := expired.GenerateTeacherToken(1)
	if err != nil {
		t.Fatalf("GenerateTeacherToken: %v", err)
	}
	if _, err := svc.ValidateToken(tok); err == nil {
		t.Error("expired token validated")
	}
}
