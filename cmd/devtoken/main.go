// Command devtoken mints an HS256 access token accepted by a server running
// with the same JWT_SECRET. Intended for local development and smoke tests.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/collabdocs/collabdocs/internal/models"
	"github.com/collabdocs/collabdocs/internal/tokens"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	var (
		sub    = pflag.String("sub", "", "user id (token subject, required)")
		email  = pflag.String("email", "", "user email, used to match collaborators")
		name   = pflag.String("name", "", "display name")
		ttl    = pflag.Duration("ttl", time.Hour, "token lifetime")
		secret = pflag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to $JWT_SECRET)")
	)
	pflag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "devtoken: --sub is required")
		pflag.Usage()
		os.Exit(2)
	}
	tok, err := tokens.GenerateAccessToken(*secret, &models.User{Sub: *sub, Email: *email, Name: *name}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
