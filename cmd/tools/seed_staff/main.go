package main

import (
	"context"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/aziz-dev/backend-kassa/internal/auth"
	"github.com/aziz-dev/backend-kassa/internal/config"
	"github.com/aziz-dev/backend-kassa/internal/db"
)

// seed_staff bootstraps the first accounts so the register has someone to
// log in as. Subsequent staff are created through the admin API.
func main() {
	name := flag.String("name", "Administrator", "display name")
	phone := flag.String("phone", "", "login phone number (required)")
	password := flag.String("password", "", "initial password (required, min 8 chars)")
	role := flag.String("role", auth.RoleAdmin, "role: admin or kassa")
	flag.Parse()

	if *phone == "" || *password == "" {
		flag.Usage()
		log.Fatal("both -phone and -password are required")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	svc, err := auth.NewService(auth.Config{
		Queries: db.New(pool),
		Secret:  cfg.JWTSecret,
	})
	if err != nil {
		log.Fatalf("initialise auth service: %v", err)
	}

	staff, err := svc.CreateStaff(ctx, *name, *phone, *password, *role)
	if err != nil {
		log.Fatalf("create staff: %v", err)
	}
	log.Printf("created %s staff %s (%s)", staff.Role, staff.Name, staff.ID)
}
