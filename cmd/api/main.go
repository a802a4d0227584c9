package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"pharmalens.org/internal/audit"
	"pharmalens.org/internal/config"
	"pharmalens.org/internal/history"
	"pharmalens.org/internal/httpapi"
	"pharmalens.org/internal/identity"
	"pharmalens.org/internal/knowledge"
	"pharmalens.org/internal/obs"
	"pharmalens.org/internal/prefs"
	"pharmalens.org/internal/respond"
)

var version = "0.3.0"

func main() {
	obs.Init()

	cfgPath := os.Getenv("PHARMALENS_CONFIG")
	if cfgPath == "" {
		cfgPath = "pharmalens.yml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Identity provider. Demo mode seeds one verified account per role so
	// every disclosure path can be exercised out of the box.
	provider := identity.NewMemoryProvider(identity.WithMailLog(func(email, code string) {
		obs.Log("identity.otp_issued", map[string]any{"email": email, "code": code})
	}))
	if cfg.DemoMode {
		seedDemoUsers(provider)
	}
	adapter := identity.NewAdapter(provider)

	tokens, err := identity.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	// Audit sink: Postgres when configured, structured logs otherwise.
	var (
		auditSink audit.Sink
		auditDB   *sql.DB
	)
	if cfg.PostgresDSN != "" {
		pg, err := audit.OpenPG(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open audit store: %v", err)
		}
		auditSink = pg
		auditDB = pg.DB()
		defer pg.Close()
	}
	emitter := audit.NewEmitter(auditSink)

	// Preferences: Redis when configured, in-process otherwise.
	var prefStore prefs.Store
	if cfg.RedisAddr != "" {
		prefStore = prefs.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}))
	} else {
		prefStore = prefs.NewMemoryStore()
	}

	hist, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.Fatalf("open history store: %v", err)
	}
	defer hist.Close()

	var retriever knowledge.Retriever
	if cfg.OpenAIKey != "" {
		retriever = knowledge.NewOpenAIRetriever(cfg.OpenAIKey, cfg.OpenAIModel)
	} else {
		retriever = knowledge.StaticRetriever{}
	}

	api := httpapi.New(httpapi.Deps{
		Adapter:        adapter,
		Tokens:         tokens,
		Retriever:      retriever,
		Assembler:      respond.New(emitter),
		Prefs:          prefStore,
		History:        hist,
		Ready:          httpapi.ReadyProbe{DB: auditDB},
		Version:        version,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting pharmalens-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func seedDemoUsers(provider *identity.MemoryProvider) {
	demo := []struct {
		email, password, name, department string
	}{
		{"qa@pharmalens.org", "Demo!2025qa", "Anna Kim", "Quality Assurance"},
		{"qc@pharmalens.org", "Demo!2025qc", "Jun Park", "Quality Control"},
		{"production@pharmalens.org", "Demo!2025pr", "Mina Cho", "Manufacturing"},
		{"regulatory@pharmalens.org", "Demo!2025ra", "Bora Lee", "Regulatory Affairs"},
		{"sales@pharmalens.org", "Demo!2025sl", "Sana Park", "Business Development"},
		{"management@pharmalens.org", "Demo!2025mg", "Dae Hyun", "Executive Leadership"},
		{"admin@pharmalens.org", "Demo!2025ad", "Ops Admin", "Information Technology"},
	}
	for _, u := range demo {
		if err := provider.Seed(u.email, u.password, u.name, u.department); err != nil {
			log.Fatalf("seed demo user %s: %v", u.email, err)
		}
	}
}
