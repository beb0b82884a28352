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

	_ "github.com/jackc/pgx/v5/stdlib"

	"gatewise.org/internal/activity"
	"gatewise.org/internal/apikey"
	"gatewise.org/internal/auth"
	"gatewise.org/internal/cache"
	"gatewise.org/internal/config"
	"gatewise.org/internal/httpapi"
	"gatewise.org/internal/notification"
	"gatewise.org/internal/obs"
	"gatewise.org/internal/rbac"
	"gatewise.org/internal/session"
	"gatewise.org/internal/setting"
	"gatewise.org/internal/termpolicy"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	tokens, err := auth.NewTokens(cfg.TokenSecret, cfg.Issuer, cfg.AccessTTL)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	c := cache.New(time.Minute)
	defer c.Close()

	api := httpapi.New(httpapi.Deps{
		Config:        cfg,
		Tokens:        tokens,
		RBAC:          rbac.NewService(rbac.NewPGStore(db)),
		Sessions:      session.NewService(session.NewPGStore(db), session.WithTTL(cfg.SessionTTL)),
		APIKeys:       apikey.NewService(apikey.NewPGStore(db), apikey.WithCache(c, cfg.APIKeyCacheTTL)),
		Settings:      setting.NewService(setting.NewPGStore(db), setting.WithCache(c, cfg.SettingCacheTTL)),
		Policies:      termpolicy.NewService(termpolicy.NewPGStore(db)),
		Notifications: notification.NewService(notification.NewPGStore(db)),
		Activities:    activity.NewService(activity.NewPGStore(db)),
		DB:            db,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting gatewise-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("stopped")
}
