package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/selcuk9494/react-sub001/internal/businessday"
	"github.com/selcuk9494/react-sub001/internal/cache"
	"github.com/selcuk9494/react-sub001/internal/config"
	"github.com/selcuk9494/react-sub001/internal/httpapi"
	"github.com/selcuk9494/react-sub001/internal/service"
	"github.com/selcuk9494/react-sub001/internal/stock"
	pgstore "github.com/selcuk9494/react-sub001/internal/store/postgres"
	"github.com/selcuk9494/react-sub001/internal/tenantdb"
)

type options struct {
	addr string
	mock bool
}

func parseFlags(args []string, cfg config.Config) (options, config.Config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address, overrides PORT (e.g. :8080)")
	mock := fs.Bool("mock", false, "serve the control plane from canned responses without connecting")
	if err := fs.Parse(args); err != nil {
		return options{}, cfg, err
	}

	opts := options{addr: cfg.Address(), mock: *mock}
	if *addr != "" {
		opts.addr = *addr
	}
	cfg.ForceMock = *mock
	return opts, cfg, nil
}

func main() {
	opts, cfg, err := parseFlags(os.Args[1:], config.Load())
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("invalid flags: %v", err)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	registry := tenantdb.New(tenantdb.Options{
		ControlPlaneURL: cfg.DatabaseURL,
		ForceMock:       cfg.ForceMock,
		ControlTimeout:  cfg.ControlQueryTimeout(),
		BranchTimeout:   cfg.BranchQueryTimeout(),
		SeedAdminEmail:  cfg.SeedAdminEmail,
	})
	state := registry.Initialize(ctx)
	log.Printf("control plane: %s", state)

	closers := make([]func() error, 0, 2)
	branchCache := cache.BranchCache(cache.NoopBranchCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisBranchCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
			_ = redisCache.Close()
		} else {
			branchCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	engine := stock.New(businessday.New(businessday.Location))
	control := pgstore.New(registry)
	svc := service.New(control, registry, engine, branchCache, cfg.BranchCacheTTL(), cfg.DefaultClosingHour)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, control)
	if state == tenantdb.StateMockMode {
		auth.IssueDemoTokens()
		log.Printf("auth: issuing demo tokens for %s only", tenantdb.MockAdminEmail)
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              opts.addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("reporting backend listening on %s", opts.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	closers = append(closers, registry.Shutdown)
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
