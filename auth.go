package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session tokens carry the username the game manager routes events by.
// This is connection identity, not authentication: a name that passes the
// uniqueness check gets a token, nothing more.

var jwtSecret []byte

const maxUsernameLength = 20

// SessionClaims is the JWT payload for a live player session.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// initAuth loads the signing secret, generating a throwaway one when the
// environment does not provide it.
func initAuth() {
	jwtSecretStr := os.Getenv("JWT_SECRET")
	if jwtSecretStr == "" {
		secret := make([]byte, 32)
		rand.Read(secret)
		jwtSecret = secret
		log.Println("Warning: JWT_SECRET not set, using randomly generated secret")
	} else {
		jwtSecret = []byte(jwtSecretStr)
	}
}

// handleLogin validates the requested username against live sessions and
// issues the session token the websocket handshake requires.
func handleLogin(manager *GameManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "malformed login request"})
			return
		}

		username := strings.TrimSpace(req.Username)
		if username == "" || len(username) > maxUsernameLength {
			log.Printf("[AUTH] Rejected login with invalid username %q", req.Username)
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid username"})
			return
		}

		if !manager.IsNameAvailable(username) {
			log.Printf("[AUTH] Rejected login: %s already in use", username)
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": ErrNameTaken.Error()})
			return
		}

		token, err := generateJWT(username)
		if err != nil {
			log.Printf("[AUTH] ERROR: Failed to generate session token: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "token generation failed"})
			return
		}

		log.Printf("[AUTH] %s logged in", username)
		json.NewEncoder(w).Encode(loginResponse{Username: username, Token: token})
	}
}

// generateJWT signs a session token for the username.
func generateJWT(username string) (string, error) {
	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "spotit",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// verifyJWT parses and validates a session token.
func verifyJWT(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
