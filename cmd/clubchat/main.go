package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clubhub-app/clubhub/backend/internal/client/rest"
	"github.com/clubhub-app/clubhub/backend/internal/config"
	"github.com/clubhub-app/clubhub/backend/internal/handler"
	"github.com/clubhub-app/clubhub/backend/internal/model/member"
	"github.com/clubhub-app/clubhub/backend/internal/service/session"
	"github.com/clubhub-app/clubhub/backend/internal/transport/socket"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	identity := member.NewStaticIdentity(member.Profile{
		ID:     cfg.User.ID,
		Name:   cfg.User.Name,
		Avatar: cfg.User.Avatar,
	})

	memberships := make([]member.Membership, 0, len(cfg.User.Rooms))
	for _, roomID := range cfg.User.Rooms {
		memberships = append(memberships, member.Membership{UserID: cfg.User.ID, RoomID: roomID})
	}
	membership := member.NewMemoryStore(memberships)

	api := rest.NewClient(cfg.API.BaseURL, cfg.API.Token)

	header := http.Header{}
	if cfg.API.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.API.Token)
	}
	channel := socket.NewChannel(cfg.Socket.URL, header)
	if err := channel.Connect(ctx); err != nil {
		log.Printf("warning: event stream unavailable, realtime delivery degraded: %v", err)
	}
	defer channel.Disconnect()

	ctrl := session.NewController(api, membership, identity, channel, cfg.Chat.TypingWindow)
	defer ctrl.ExitRoom()
	go ctrl.Run(ctx)

	router := handler.NewRouter(ctrl)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("ClubHub chat engine listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
