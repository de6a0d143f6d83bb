// Command token mints development access tokens for connecting to the
// realtime server without the account service.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/streamcart/streamcart/internal/auth"
	"github.com/streamcart/streamcart/internal/models"
)

func main() {
	var (
		userID = flag.String("user", "", "user ID (required)")
		name   = flag.String("name", "", "display name")
		avatar = flag.String("avatar", "", "avatar URL")
		role   = flag.String("role", "buyer", "role: buyer or streamer")
		shop   = flag.String("shop", "", "shop name (streamers)")
		secret = flag.String("secret", envOr("TOKEN_SECRET", "dev-secret-change-me"), "signing secret")
		issuer = flag.String("issuer", envOr("TOKEN_ISSUER", "streamcart"), "token issuer")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "error: -user is required")
		flag.Usage()
		os.Exit(1)
	}

	u := &models.User{
		ID:       *userID,
		Name:     *name,
		Avatar:   *avatar,
		Role:     models.Role(*role),
		ShopName: *shop,
	}

	token, err := auth.NewVerifier(*secret, *issuer).Mint(u, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
