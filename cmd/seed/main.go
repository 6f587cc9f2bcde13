// Command main fills a development database with demo creators, fans and lives.
package main

import (
	"context"
	"flag"
	"log"

	"fanlive/internal/config"
	"fanlive/internal/database"
	"fanlive/internal/seed"
)

func main() {
	creators := flag.Int("creators", 5, "Number of creators to create")
	fans := flag.Int("fans", 40, "Number of fans to create")
	seedValue := flag.Int64("seed", 0, "Random seed (0 picks one)")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db, seed.Options{Creators: *creators, Fans: *fans, Seed: *seedValue})
	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	sum, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users, %d lives, %d bookings, %d transactions, %d calls",
		sum.Users, sum.Lives, sum.Bookings, sum.Transactions, sum.Calls)
}
