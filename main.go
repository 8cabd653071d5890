package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/mailauth/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

type App struct {
	DB   DB
	Auth *AuthService
}

func newRouter(app *App, allowedOrigin string) *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(Logging)
	r.Use(CORS(allowedOrigin))

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := app.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	// Preflight requests need a matching route for the CORS middleware to run.
	r.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	api := r.PathPrefix("/api").Subrouter()

	// Authentication endpoints
	api.HandleFunc("/register", app.HandleRegister).Methods("POST")
	api.HandleFunc("/login", app.HandleLogin).Methods("POST")
	api.HandleFunc("/google-signin", app.HandleGoogleSignIn).Methods("POST")
	api.HandleFunc("/refresh", app.HandleRefresh).Methods("POST")

	// Everything else sits behind the bearer gate
	protected := api.NewRoute().Subrouter()
	protected.Use(app.RequireAuth)
	protected.HandleFunc("/logout", app.HandleLogout).Methods("POST")
	protected.HandleFunc("/me", app.HandleMe).Methods("GET")
	protected.HandleFunc("/mailboxes", app.HandleMailboxes).Methods("GET")
	protected.HandleFunc("/mailboxes/{mailboxId}/emails", app.HandleEmails).Methods("GET")
	protected.HandleFunc("/emails/{emailId}", app.HandleEmailDetail).Methods("GET")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		db = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}

		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Fatalf("migrations: %v", err)
		}

		p, err := NewPostgresDB(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		db = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	if c.GoogleClientID == "" {
		log.Println("GOOGLE_CLIENT_ID not set; Google sign-in will reject every credential")
	}
	auth := NewAuthService(db, NewGoogleVerifier(c.GoogleClientID), c.AccessTokenTTL, c.RefreshTokenTTL)
	app := &App{DB: db, Auth: auth}

	srv := &http.Server{
		Handler:      newRouter(app, c.CORSAllowedOrigin),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Println("Starting auth server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}
