package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Response structure for API endpoints
type Response struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{
		Message: "Backend is running",
		Status:  "healthy",
	})
}

// envString reads an environment variable with a default.
func envString(name, fallback string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return fallback
}

// envInt reads an integer environment variable with a default; a value
// that does not parse falls back rather than crashing the boot.
func envInt(name string, fallback int) int {
	val := os.Getenv(name)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", name, val, fallback)
		return fallback
	}
	return n
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment defaults")
	}

	initAuth()
	if err := InitRedis(); err != nil {
		log.Printf("Match queue disabled: %v", err)
	}

	manager := NewGameManager(NewHTTPBitmapLoader())
	go manager.Run()

	if IsRedisAvailable() {
		go SubscribeMatches(manager.HandleMatchAnnouncement)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/login", handleLogin(manager)).Methods(http.MethodPost)
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(manager, w, r)
	})

	port := envString("PORT", "8080")
	addr := fmt.Sprintf(":%s", port)
	log.Printf("Server starting on port %s", port)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
