package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"library/internal/catalog"
	"library/internal/config"
	"library/internal/platform/logging"
	"library/internal/platform/postgres"
)

func main() {
	var (
		books = flag.Int("books", 0, "number of generated books to add after the defaults")
		users = flag.Int("users", 0, "number of generated users to add after the defaults")
	)
	flag.Parse()

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.New(log.Writer(), cfg.LogLevel)

	ctx := context.Background()
	pool, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	store := catalog.NewService(
		catalog.NewPostgresRepo(pool, cfg.DBTimeout),
		catalog.WithLogger(logger),
	)
	if err := store.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	if err := generate(ctx, store, rand.New(rand.NewSource(rand.Int63())), *books, *users); err != nil {
		log.Fatalf("Failed to generate data: %v", err)
	}

	total, err := store.ListBooks(ctx)
	if err != nil {
		log.Fatalf("Failed to count books: %v", err)
	}
	log.Printf("Total books in database: %d", len(total))
}

// generate adds synthetic books and users for demos and load checks.
func generate(ctx context.Context, store *catalog.Service, rng *rand.Rand, books, users int) error {
	for i := 0; i < books; i++ {
		title := fmt.Sprintf("%s and %s", randomWord(rng), randomWord(rng))
		author := fmt.Sprintf("%s %s", firstNames[rng.Intn(len(firstNames))], lastNames[rng.Intn(len(lastNames))])
		if _, err := store.AddBook(ctx, title, author); err != nil {
			return err
		}
		if (i+1)%100 == 0 {
			log.Printf("Generated %d/%d books", i+1, books)
		}
	}
	for i := 0; i < users; i++ {
		name := fmt.Sprintf("%s %s", firstNames[rng.Intn(len(firstNames))], lastNames[rng.Intn(len(lastNames))])
		if _, err := store.AddUser(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

var (
	firstNames = []string{"Ada", "Ben", "Chloe", "Dev", "Elena", "Farid", "Grace", "Hugo", "Iris", "Jonas"}
	lastNames  = []string{"Archer", "Baker", "Carter", "Diaz", "Evans", "Fischer", "Garcia", "Hughes", "Ito", "Jensen"}
)

func randomWord(rng *rand.Rand) string {
	words := []string{
		"Adventure", "Mystery", "Journey", "Discovery", "Secrets", "Dreams", "Hope",
		"Love", "War", "Peace", "Science", "Nature", "Technology", "History", "Future",
		"Past", "Present", "Reality", "Imagination", "Wisdom", "Life", "Death",
		"Light", "Darkness", "World", "Universe", "Time", "Space", "Mind", "Soul",
	}
	return words[rng.Intn(len(words))]
}
