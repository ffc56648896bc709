package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/library/circulation"
	"LIBRA-backend/internal/library/labels"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/db"
)

func main() {
	// 設定読み込み（第1引数で上書き可）
	cfgPath := db.DefaultConfigPath
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := db.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	// 動作モード取得
	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if mode != "dev" && mode != "release" {
		fmt.Println("Usage: libra [config.yaml]  (mode must be dev or release)")
		return
	}

	settings, err := circulation.SettingsFromConfig(cfg.Library)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	secret, err := jwtSecret(cfg)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s (%s)", dbName(cfg.DB), cfg.DB.Driver)

	ctx := context.Background()
	store, err := circulation.NewSQLStore(conn, cfg.DB.Driver)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	accounts := auth.NewStore(conn, cfg.DB.Driver)
	if err := accounts.Migrate(ctx); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	authSvc := auth.NewService(accounts, secret, cfg.TokenTTL())
	if err := authSvc.Bootstrap(ctx, cfg.Auth.AdminID, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("[ERROR] bootstrap admin: %v", err)
	}

	svc := circulation.NewService(store, settings, circulation.WithNotifier(circulation.LogNotifier{}))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location", "X-Label-Count"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		if err := conn.PingContext(c.Request.Context()); err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	// /api/v1
	adminOnly := auth.RequireRole(auth.RoleAdmin)
	api := r.Group("/api/v1", auth.RequireAuth(secret), auth.RequireRole(auth.RoleLibrarian, auth.RoleAdmin))
	auth.RegisterRoutes(r.Group("/api/v1"), api, authSvc, adminOnly)
	circulation.RegisterRoutes(api, svc, adminOnly)
	labels.RegisterRoutes(api, labels.NewService(svc))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
			// TLS設定（dev/release でディレクトリを分ける）
			dir := filepath.Join("config", "tls", mode)
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(filepath.Join(dir, cfg.Certificate.Cert), filepath.Join(dir, cfg.Certificate.Key))
		} else {
			log.Printf("[WARN] no certificate configured, listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[ERROR] %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
}

// jwtSecret: release では設定必須。dev で未設定なら起動ごとに乱数で作る
func jwtSecret(cfg *db.Config) ([]byte, error) {
	if cfg.Auth.JWTSecret != "" {
		return []byte(cfg.Auth.JWTSecret), nil
	}
	if cfg.Mode == "release" {
		return nil, errors.New("auth.jwt_secret is required in release mode")
	}
	log.Println("[WARN] auth.jwt_secret not set, using a random secret; tokens will not survive a restart")
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func dbName(c db.DatabaseConfig) string {
	if c.Driver == db.DriverSQLite {
		return c.Path
	}
	return c.DBName
}
