// Command tokengen issues admin API bearer tokens. The admin API has no
// login endpoint; operators mint tokens out of band with this tool and
// revoke them by JTI through the token blacklist.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/storesync/backend/internal/infrastructure/auth"
	"github.com/storesync/backend/internal/infrastructure/config"
)

func main() {
	var (
		operator string
		quiet    bool
	)

	flag.StringVar(&operator, "operator", "", "Operator name embedded in the token subject (required)")
	flag.BoolVar(&quiet, "quiet", false, "Print only the token, no expiry banner")
	flag.Parse()

	if operator == "" {
		fmt.Fprintln(os.Stderr, "Usage: tokengen -operator <name> [-quiet]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Reads the JWT secret from configuration (STORESYNC_JWT_SECRET).")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := auth.NewJWTService(cfg.JWT).IssueToken(operator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	if quiet {
		fmt.Println(token)
		return
	}

	fmt.Printf("Operator:   %s\n", operator)
	fmt.Printf("Expires at: %s\n", expiresAt.Format(time.RFC3339))
	fmt.Printf("Token:      %s\n", token)
}
