package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wuwenbin0122/chatquota/internal/db"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

func main() {
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

	if err := store.EnsureCollections(ctx); err != nil {
		log.Fatalf("ensure collections: %v", err)
	}

	for _, coll := range []*mongo.Collection{store.Users, store.Messages} {
		if err := printIndexes(ctx, coll); err != nil {
			log.Fatalf("list indexes of %s: %v", coll.Name(), err)
		}
	}

	fmt.Println("collections ready")
}

func printIndexes(ctx context.Context, coll *mongo.Collection) error {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	fmt.Printf("%s:\n", coll.Name())
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			return err
		}
		fmt.Printf("- %v %v unique=%v\n", index["name"], index["key"], index["unique"] == true)
	}
	return cursor.Err()
}
