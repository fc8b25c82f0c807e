package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/logger"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
	"golang.org/x/term"
)

// issue-token signs an identity token with JWT_SECRET for load tests,
// proctor tooling and local development.
func main() {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	flag.StringVar(&userID, "user", "", "User ID placed in the token subject")
	flag.StringVar(&role, "role", string(service.RoleStudent), "Role: student or admin")
	flag.DurationVar(&ttl, "ttl", 4*time.Hour, "Token lifetime")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	// ─── CLI Input ─────────────────────────────────────────────────────
	if userID == "" && interactive {
		reader := bufio.NewReader(os.Stdin)
		fmt.Println("=== Issue Identity Token ===")
		fmt.Print("Enter User ID: ")
		line, _ := reader.ReadString('\n')
		userID = strings.TrimSpace(line)
	}
	if userID == "" {
		log.Fatal().Msg("User ID is required (-user)")
	}

	r := service.Role(role)
	if r != service.RoleStudent && r != service.RoleAdmin {
		log.Fatal().Str("role", role).Msg("Role must be student or admin")
	}
	if ttl <= 0 {
		log.Fatal().Dur("ttl", ttl).Msg("TTL must be positive")
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).IssueToken(userID, r, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	// Piped output is just the token so scripts can capture it.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println(token)
		return
	}
	fmt.Printf("\nToken for %s (%s), valid until %s:\n%s\n",
		userID, r, time.Now().Add(ttl).Format(time.RFC3339), token)
}
