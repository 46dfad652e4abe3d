package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const verificationCodeTTL = 10 * time.Minute

type sendCodeRequest struct {
	Email string `json:"email"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *App) sendVerificationCode(c *gin.Context) {
	var payload sendCodeRequest
	if !mustJSON(c, &payload) {
		return
	}
	email := normalizeEmail(payload.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeError(c, http.StatusBadRequest, "A valid email is required")
		return
	}

	code, err := generateVerificationCode()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to generate verification code")
		return
	}
	expiresAt := time.Now().UTC().Add(verificationCodeTTL)
	_, err = a.db.Exec(c.Request.Context(),
		`INSERT INTO verification_codes (email, code, expires_at) VALUES ($1, $2, $3)`,
		email, code, expiresAt)
	if err != nil {
		log.Printf("store verification code: %v", err)
		writeError(c, http.StatusInternalServerError, "Failed to send verification code")
		return
	}

	// Email delivery is out of scope; the code lands in the server log.
	log.Printf("[email] verification code for %s: %s", email, code)

	c.JSON(http.StatusOK, gin.H{"message": "Verification code sent"})
}

func (a *App) register(c *gin.Context) {
	var payload registerRequest
	if !mustJSON(c, &payload) {
		return
	}
	email := normalizeEmail(payload.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeError(c, http.StatusBadRequest, "A valid email is required")
		return
	}
	if payload.Password == "" {
		writeError(c, http.StatusBadRequest, "password is required")
		return
	}

	ctx := c.Request.Context()
	tx, err := a.db.Begin(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to start transaction")
		return
	}
	defer tx.Rollback(ctx)

	var existing int64
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&existing)
	if err == nil {
		writeError(c, http.StatusBadRequest, "Email already registered")
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusInternalServerError, "Failed to look up user")
		return
	}

	var codeID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM verification_codes
		 WHERE email = $1 AND code = $2 AND is_used = FALSE AND expires_at > NOW()
		 ORDER BY id DESC
		 LIMIT 1`,
		email, payload.Code).Scan(&codeID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusBadRequest, "Invalid or expired verification code")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to check verification code")
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE verification_codes SET is_used = TRUE WHERE id = $1`, codeID); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to consume verification code")
		return
	}

	hashed, err := hashPassword(payload.Password)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to hash password")
		return
	}
	nickname := strings.SplitN(email, "@", 2)[0]

	var userID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO users (email, hashed_password, nickname) VALUES ($1, $2, $3) RETURNING id`,
		email, hashed, nickname).Scan(&userID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create user")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to complete registration")
		return
	}

	a.issueToken(c, userID, email, nickname)
}

func (a *App) login(c *gin.Context) {
	var payload loginRequest
	if !mustJSON(c, &payload) {
		return
	}
	email := normalizeEmail(payload.Email)

	var (
		userID   int64
		hashed   string
		nickname string
	)
	err := a.db.QueryRow(c.Request.Context(),
		`SELECT id, hashed_password, nickname FROM users WHERE email = $1`, email).
		Scan(&userID, &hashed, &nickname)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to look up user")
		return
	}
	if !verifyPassword(payload.Password, hashed) {
		writeError(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	a.issueToken(c, userID, email, nickname)
}

// issueToken signs an access token and writes the login response used by
// both register and login.
func (a *App) issueToken(c *gin.Context, userID int64, email, nickname string) {
	token, err := a.signAccessToken(userID, email)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to issue access token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user": gin.H{
			"id":       userID,
			"email":    email,
			"nickname": nickname,
		},
	})
}

func (a *App) signAccessToken(userID int64, email string) (string, error) {
	claims := jwt.MapClaims{
		"sub": email,
		"uid": userID,
		"exp": time.Now().Add(time.Duration(a.cfg.AccessTokenTTLMinutes) * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(a.cfg.JWTAlgorithm), claims)
	return token.SignedString([]byte(a.cfg.JWTSecret))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// bcrypt only reads the first 72 bytes of input; longer passwords are
// truncated up front.
func truncateForBcrypt(password string) []byte {
	raw := []byte(password)
	if len(raw) > 72 {
		raw = raw[:72]
	}
	return raw
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(truncateForBcrypt(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func verifyPassword(password, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), truncateForBcrypt(password)) == nil
}
