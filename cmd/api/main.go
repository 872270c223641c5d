package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procur.org/internal/audit"
	"procur.org/internal/auth"
	"procur.org/internal/config"
	"procur.org/internal/group"
	"procur.org/internal/httpapi"
	"procur.org/internal/idp"
	"procur.org/internal/invite"
	"procur.org/internal/mail"
	"procur.org/internal/obs"
	"procur.org/internal/store/pg"
	"procur.org/internal/stream"
	"procur.org/internal/upload"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

const sweepInterval = 5 * time.Minute

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.Load()
	if cfg.AuthSecret == "" {
		log.Fatal("PROCUR_AUTH_SECRET is required")
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("PROCUR_PG_DSN is required")
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	provider, err := idp.New(store, cfg.AuthSecret,
		idp.WithIssuer(cfg.AuthIssuer),
		idp.WithTokenTTL(cfg.AccessTokenTTL),
	)
	if err != nil {
		log.Fatalf("identity provider: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blacklist := auth.NewBlacklist()
	blacklist.StartSweeper(ctx, sweepInterval)
	window := auth.NewRateWindowWith(cfg.RateLimitPerCredential, cfg.RateLimitWindow)
	window.StartSweeper(ctx, sweepInterval)

	validator, err := auth.NewValidator(provider, blacklist, window,
		auth.WithMaxCredentialAge(cfg.MaxCredentialAge))
	if err != nil {
		log.Fatalf("validator: %v", err)
	}
	resolver, err := auth.NewResolver(store)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	gate, err := auth.NewGate(store, store,
		auth.WithDenialLogger(func(ctx context.Context, event string, fields map[string]any) {
			_ = audit.LogEvent(ctx, event, fields)
		}))
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	var mailer *mail.Mailer
	if cfg.EnableEmail {
		mailer = mail.New(mail.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			Enabled:  true,
		})
	}

	var events *stream.Stream
	if cfg.EnableRealtime {
		events = stream.New(stream.WithMembership(func(groupID, userID string) bool {
			_, err := store.FindMember(context.Background(), groupID, userID)
			return err == nil
		}))
	}

	groupOpts := []group.ServiceOption{}
	if mailer != nil {
		groupOpts = append(groupOpts, group.WithNotifier(mailer))
	}
	if events != nil {
		groupOpts = append(groupOpts, group.WithEvents(events))
	}
	groups, err := group.NewService(store, gate, store, groupOpts...)
	if err != nil {
		log.Fatalf("group service: %v", err)
	}

	inviteOpts := []invite.ServiceOption{}
	if mailer != nil {
		inviteOpts = append(inviteOpts, invite.WithMailer(mailer))
	}
	if events != nil {
		inviteOpts = append(inviteOpts, invite.WithEvents(events))
	}
	invites, err := invite.NewService(store, store, gate, cfg.FrontendURL, inviteOpts...)
	if err != nil {
		log.Fatalf("invite service: %v", err)
	}

	var uploads *upload.Service
	if cfg.EnableUploads {
		uploads, err = upload.NewService(cfg.UploadDir, cfg.MaxUploadBytes, cfg.AllowedMIMETypes, cfg.CDNURL)
		if err != nil {
			log.Fatalf("upload service: %v", err)
		}
	}

	maxBody := int64(1 << 20)
	if uploads != nil && cfg.MaxUploadBytes+(64<<10) > maxBody {
		maxBody = cfg.MaxUploadBytes + (64 << 10)
	}

	api, err := httpapi.New(httpapi.Options{
		Version:    version,
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},

		Validator: validator,
		Resolver:  resolver,
		Gate:      gate,
		Provider:  provider,
		Users:     store,
		Groups:    groups,
		Invites:   invites,

		Uploads: uploads,
		Mailer:  mailer,
		Events:  events,

		Origins:      cfg.AllowedOrigins,
		MaxBodyBytes: maxBody,
		RateBurst:    cfg.RateLimitBurst,
		RatePerSec:   cfg.RateLimitPerIP,
	})
	if err != nil {
		log.Fatalf("api: %v", err)
	}

	// No WriteTimeout: /api/events holds long-lived SSE connections.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting procur-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
