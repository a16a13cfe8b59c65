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
	"github.com/zhouzirui/z-inbox/backend/internal/config"
	"github.com/zhouzirui/z-inbox/backend/internal/handler"
	"github.com/zhouzirui/z-inbox/backend/internal/service/conversation"
	"github.com/zhouzirui/z-inbox/backend/internal/service/countdown"
	"github.com/zhouzirui/z-inbox/backend/internal/service/dialog"
	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
	"github.com/zhouzirui/z-inbox/backend/internal/service/live"
	"github.com/zhouzirui/z-inbox/backend/internal/service/script"
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

	scripts, err := script.Load(cfg.Script.Path, cfg.Script.Sheet)
	if err != nil {
		log.Fatalf("failed to load dialog script: %v", err)
	}
	log.Printf("dialog script loaded: %d nodes from %s", scripts.Len(), cfg.Script.Path)

	bus := events.NewBus()
	hub := live.NewHub(0)
	hub.Forward(bus)

	timer := countdown.New(cfg.Countdown.Total, bus)
	if hint := scripts.TotalTimeHint(); hint > 0 {
		timer.SetTotal(time.Duration(hint * float64(time.Second)))
	}
	timer.StopOnResult(bus)

	router := conversation.NewRouter(cfg.Dialog.Seeds(), hub, bus)
	sequencer := dialog.NewSequencer(scripts, router, bus, timer, cfg.Dialog.Sequencer())
	sequencer.Attach()
	defer sequencer.Close()

	bus.Subscribe(events.TopicWin, func(events.Event) { log.Println("session won") })
	bus.Subscribe(events.TopicFail, func(events.Event) { log.Println("session failed: time is up") })

	go timer.Run(ctx, cfg.Countdown.Tick)

	if err := router.ActivateFirst(); err != nil {
		log.Printf("warning: failed to activate first contact: %v", err)
	}
	if cfg.Dialog.StartNode > 0 {
		bus.Publish(events.Event{Topic: events.TopicDialogStart, NodeID: cfg.Dialog.StartNode})
	}

	httpHandler := handler.NewRouter(handler.Services{
		Router:    router,
		Bus:       bus,
		Sequencer: sequencer,
		Countdown: timer,
		Hub:       hub,
	})

	startServer(ctx, cfg.Server, httpHandler)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Inbox backend listening on %s", addr)
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
