package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/wuwenbin0122/chatquota/internal/db"
	"github.com/wuwenbin0122/chatquota/internal/models"
	"github.com/wuwenbin0122/chatquota/internal/ratelimit"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

func main() {
	userName := flag.String("user", "", "user name to inspect")
	lastN := flag.Int("n", db.MinHistoryLimit, "number of messages to print")
	flag.Parse()

	if *userName == "" {
		log.Fatal("-user is required")
	}

	_ = godotenv.Load()

	cfg, err := utils.LoadMongoConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	store, err := db.NewMongo(ctx, cfg)
	if err != nil {
		log.Fatalf("connect mongo: %v", err)
	}
	defer store.Close(ctx)

	// read-only: unknown users are reported, not created
	user, err := db.NewUserStore(store).FindByName(ctx, *userName)
	if errors.Is(err, db.ErrNotFound) {
		fmt.Printf("user %q has never chatted\n", *userName)
		return
	}
	if err != nil {
		log.Fatalf("find user: %v", err)
	}

	messages := db.NewMessageStore(store)
	now := time.Now().UTC()

	today, err := messages.CountMatching(ctx, user.ID, models.RoleUser, ratelimit.StartOfDay(now))
	if err != nil {
		log.Fatalf("count today: %v", err)
	}
	burst, err := messages.CountMatching(ctx, user.ID, models.RoleUser, now.Add(-ratelimit.DefaultLimits().BurstWindow))
	if err != nil {
		log.Fatalf("count burst window: %v", err)
	}

	fmt.Printf("user %s (%s) created %s\n", user.Name, user.ID, user.CreatedAt.Format(time.RFC3339))
	fmt.Printf("messages today: %d, in burst window: %d\n", today, burst)

	recent, err := messages.Recent(ctx, user.ID, *lastN)
	if err != nil {
		log.Fatalf("load history: %v", err)
	}

	for _, msg := range recent {
		fmt.Printf("%s [%-4s] %s\n", msg.CreatedAt.Format(time.RFC3339), msg.Role, msg.Text)
	}
}
