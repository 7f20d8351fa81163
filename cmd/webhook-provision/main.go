// webhook-provision manages inbound API keys and outbound destinations for a
// tenant. Keys and destinations are operator-provisioned; there is no HTTP
// surface for them. The plaintext key is printed exactly once on creation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"marketingops_backend/internal/webhook"
	"marketingops_backend/platform/config"
	"marketingops_backend/platform/db"
	"marketingops_backend/platform/logger"

	"github.com/google/uuid"
)

func main() {
	var (
		action     = flag.String("action", "", "create-key | revoke-key | add-destination")
		org        = flag.String("org", "", "organization UUID")
		name       = flag.String("name", "", "key or destination name")
		keyID      = flag.String("key", "", "key UUID (revoke-key)")
		url        = flag.String("url", "", "destination URL (add-destination)")
		secret     = flag.String("secret", "", "destination signing secret (add-destination)")
		eventKinds = flag.String("events", "", "comma-separated event kinds the destination subscribes to; empty means all")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	orgID, err := uuid.Parse(*org)
	if err != nil {
		fmt.Fprintln(os.Stderr, "-org must be a valid UUID")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	repo := webhook.NewRepository(pool)

	switch *action {
	case "create-key":
		if *name == "" {
			fmt.Fprintln(os.Stderr, "-name is required for create-key")
			os.Exit(1)
		}
		plaintext, hash, prefix, err := webhook.GenerateAPIKey()
		if err != nil {
			log.Error("failed to generate key", "error", err)
			os.Exit(1)
		}
		key, err := repo.CreateKey(ctx, orgID, *name, hash, prefix)
		if err != nil {
			log.Error("failed to store key", "error", err)
			os.Exit(1)
		}
		fmt.Printf("key id:  %s\n", key.ID)
		fmt.Printf("prefix:  %s\n", key.KeyPrefix)
		fmt.Printf("api key: %s\n", plaintext)
		fmt.Println("store the api key now; it cannot be recovered")

	case "revoke-key":
		id, err := uuid.Parse(*keyID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "-key must be a valid UUID")
			os.Exit(1)
		}
		if err := repo.RevokeKey(ctx, id, orgID); err != nil {
			log.Error("failed to revoke key", "keyId", id, "error", err)
			os.Exit(1)
		}
		fmt.Printf("key %s revoked\n", id)

	case "add-destination":
		if *name == "" || *url == "" {
			fmt.Fprintln(os.Stderr, "-name and -url are required for add-destination")
			os.Exit(1)
		}
		var kinds []string
		for _, kind := range strings.Split(*eventKinds, ",") {
			if kind = strings.TrimSpace(kind); kind != "" {
				kinds = append(kinds, kind)
			}
		}
		dest, err := repo.CreateDestination(ctx, webhook.Destination{
			OrganizationID: orgID,
			Name:           *name,
			URL:            *url,
			Secret:         *secret,
			Headers:        map[string]string{},
			EventKinds:     kinds,
		})
		if err != nil {
			log.Error("failed to create destination", "error", err)
			os.Exit(1)
		}
		fmt.Printf("destination %s created for %s\n", dest.ID, dest.URL)

	default:
		fmt.Fprintln(os.Stderr, "unknown -action; use create-key, revoke-key or add-destination")
		os.Exit(1)
	}
}
