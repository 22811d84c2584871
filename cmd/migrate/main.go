package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"rfphub.org/internal/auth"
	"rfphub.org/internal/ids"
	"rfphub.org/internal/migrate"
	"rfphub.org/internal/policy"
	"rfphub.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("RFPHUB_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "migrations", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or RFPHUB_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|roles|adduser <email> <password> <role>]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var applied []string
		applied, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range applied {
				fmt.Println(item)
			}
		}
	case "roles":
		err = installBuiltinRoles(ctx, store)
	case "adduser":
		if flag.NArg() != 4 {
			log.Fatal("usage: migrate adduser <email> <password> <role>")
		}
		err = addUser(ctx, store, flag.Arg(1), flag.Arg(2), flag.Arg(3))
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// installBuiltinRoles upserts the built-in role policies. Safe to rerun;
// custom roles are untouched.
func installBuiltinRoles(ctx context.Context, store *pg.Store) error {
	now := time.Now().UTC()
	for name, p := range policy.Builtin() {
		if err := store.SetRolePolicy(ctx, name, p, now); err != nil {
			return fmt.Errorf("install role %s: %w", name, err)
		}
		fmt.Printf("role %s installed\n", name)
	}
	return nil
}

func addUser(ctx context.Context, store *pg.Store, email, password, role string) error {
	if _, err := store.GetRole(ctx, role); err != nil {
		return fmt.Errorf("role %s: %w", role, err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u := auth.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       auth.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(ctx, &u); err != nil {
		return err
	}
	fmt.Printf("user %s (%s) created: %s\n", u.Email, u.Role, u.ID)
	return nil
}
