/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the activity report lifecycle server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Initialize git ledger and verify structure
  4. Create lifecycle service and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: cra.db)
                   Use ":memory:" for in-memory database
  -ledger-path     Git ledger repository path (default: ./ledger-repo)
  -ledger-branch   Ledger branch name (default: main)
  -ledger-timeout  Per-operation git timeout (default: 10s)
  -env             Deployment environment (default: development)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database and local ledger
  ./server -db="./data/cra.db" -ledger-path="./data/ledger"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - ledger/git.go: Ledger implementation
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mickeymick25/foresy-sub002/api"
	"github.com/mickeymick25/foresy-sub002/cra"
	"github.com/mickeymick25/foresy-sub002/ledger"
	"github.com/mickeymick25/foresy-sub002/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "cra.db", "SQLite database path")
	ledgerPath := flag.String("ledger-path", "./ledger-repo", "Git ledger repository path")
	ledgerBranch := flag.String("ledger-branch", "main", "Ledger branch name")
	ledgerTimeout := flag.Duration("ledger-timeout", 10*time.Second, "Per-operation git timeout")
	env := flag.String("env", "development", "Deployment environment")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize ledger
	repo := ledger.NewGitLedger(ledger.Config{
		Path:    *ledgerPath,
		Branch:  *ledgerBranch,
		Env:     *env,
		Timeout: *ledgerTimeout,
	}, nil)
	if err := repo.EnsureInitialized(context.Background()); err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}

	// Wire services
	locker := cra.NewLocker(store, repo)
	service := cra.NewService(store, locker)
	handler := api.NewHandler(service, repo)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📒 Ledger at %s (branch %s)", *ledgerPath, *ledgerBranch)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
