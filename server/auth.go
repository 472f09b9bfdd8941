package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry        = 24 * time.Hour
	minUsernameLen   = 2
	maxUsernameLen   = 32
	helloRateWindow  = 60 * time.Second
	maxHelloAttempts = 10
)

// bcryptCost is the work factor for the server password hash
var bcryptCost = 12

var (
	errRateLimited = errors.New("too many attempts, try again later")
	errBadPassword = errors.New("invalid server password")
	errBadToken    = errors.New("invalid token")
	errBadUsername = fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
)

// Auth admits connections. An empty server password admits everyone; a valid
// reconnect token always stands in for the password.
type Auth struct {
	jwtSecret []byte
	passHash  []byte

	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates an Auth, hashing password if one is set. db may be nil.
func NewAuth(db *DB, password string) (*Auth, error) {
	a := &Auth{
		jwtSecret: loadOrCreateSecret(db),
		rateMap:   make(map[string]*rateEntry),
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash server password: %w", err)
		}
		a.passHash = hash
	}
	return a, nil
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("warning: could not persist JWT secret: %v", err)
		}
	}
	return secret
}

// RequiresPassword reports whether the server is password protected
func (a *Auth) RequiresPassword() bool {
	return a.passHash != nil
}

// Authenticate admits a Hello and returns the resolved username and a fresh reconnect token
func (a *Auth) Authenticate(req *HelloRequest, ip string) (string, string, error) {
	if !a.checkRate(ip) {
		return "", "", errRateLimited
	}

	username := strings.TrimSpace(req.Username)
	switch {
	case req.Token != "":
		name, err := a.ValidateToken(req.Token)
		if err != nil {
			return "", "", errBadToken
		}
		username = name
	case a.passHash != nil:
		if err := bcrypt.CompareHashAndPassword(a.passHash, []byte(req.Password)); err != nil {
			return "", "", errBadPassword
		}
	}

	if username == "" {
		username = GenerateGuestName()
	}
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return "", "", errBadUsername
	}

	token, err := a.generateToken(username)
	if err != nil {
		return "", "", fmt.Errorf("internal error")
	}
	return username, token, nil
}

// ValidateToken validates a reconnect token and returns its username
func (a *Auth) ValidateToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errBadToken
	}
	username, ok := claims["usr"].(string)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	return username, nil
}

func (a *Auth) generateToken(username string) (string, error) {
	claims := jwt.MapClaims{
		"usr": username,
		"exp": time.Now().Add(jwtExpiry).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(helloRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxHelloAttempts
}

// GenerateGuestName creates a unique guest name like "Guest_a3f2c1"
func GenerateGuestName() string {
	b := make([]byte, 3)
	rand.Read(b)
	return "Guest_" + hex.EncodeToString(b)
}
