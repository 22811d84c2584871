package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rfphub.org/internal/audit"
	"rfphub.org/internal/auth"
	"rfphub.org/internal/document"
	"rfphub.org/internal/httpapi"
	"rfphub.org/internal/ids"
	"rfphub.org/internal/obs"
	"rfphub.org/internal/policy"
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
	"rfphub.org/internal/store/memory"
	"rfphub.org/internal/store/pg"
	"rfphub.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

// backend groups the persistence contracts the wiring needs, so the pg and
// in-memory stores plug in interchangeably.
type backend struct {
	rfps      rfp.Store
	responses response.Store
	documents document.Store
	users     auth.UserStore
	roles     auth.RoleStore
	resolver  policy.ContextResolver
	recorder  audit.Recorder
}

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		be      backend
		pgStore *pg.Store
	)
	if dsn := os.Getenv("RFPHUB_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		be = backend{
			rfps:      pgStore,
			responses: pgStore,
			documents: pgStore,
			users:     pgStore,
			roles:     pgStore,
			resolver:  pgStore,
			recorder:  audit.Fanout(audit.NewLogRecorder(), pgStore),
		}
	} else {
		mem := memory.New()
		mem.SeedBuiltinRoles()
		seedDemoUsers(mem)
		be = backend{
			rfps:      mem,
			responses: mem,
			documents: mem,
			users:     mem,
			roles:     mem,
			resolver:  mem,
			recorder:  audit.Fanout(audit.NewLogRecorder(), mem),
		}
		log.Println("RFPHUB_PG_DSN not set, using in-memory store")
	}

	transitions := stream.New()
	hook := func(ctx context.Context, entity, id, from, to string) {
		obs.ObserveTransition(entity, from, to)
		transitions.Hook()(ctx, entity, id, from, to)
	}

	rfpSvc, err := rfp.NewService(be.rfps, be.recorder, rfp.WithHook(hook))
	if err != nil {
		log.Fatalf("rfp service: %v", err)
	}
	respSvc, err := response.NewService(be.responses, be.rfps, be.recorder, response.WithHook(hook))
	if err != nil {
		log.Fatalf("response service: %v", err)
	}
	docSvc, err := document.NewService(be.documents, be.recorder)
	if err != nil {
		log.Fatalf("document service: %v", err)
	}
	gate, err := policy.NewGate(be.resolver)
	if err != nil {
		log.Fatalf("authorization gate: %v", err)
	}

	var probe httpapi.ReadyProbe
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	api := httpapi.New(probe, version, httpapi.Deps{
		Gate:      gate,
		Resolver:  be.resolver,
		RFPs:      rfpSvc,
		Responses: respSvc,
		Documents: docSvc,
		Users:     be.users,
		Roles:     be.roles,
		Recorder:  be.recorder,
		Stream:    transitions,
	})

	addr := os.Getenv("RFPHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting rfphub-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

// seedDemoUsers provisions one account per built-in role so the in-memory
// mode is usable out of the box.
func seedDemoUsers(mem *memory.Store) {
	password := os.Getenv("RFPHUB_DEMO_PASSWORD")
	if password == "" {
		password = "rfphub-demo"
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash demo password: %v", err)
	}
	now := time.Now().UTC()
	for _, role := range []string{policy.RoleAdmin, policy.RoleBuyer, policy.RoleSupplier} {
		u := auth.User{
			ID:           ids.New(),
			Email:        role + "@rfphub.local",
			PasswordHash: hash,
			Role:         role,
			Status:       auth.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := mem.CreateUser(context.Background(), &u); err != nil {
			log.Fatalf("seed demo user %s: %v", u.Email, err)
		}
	}
}
