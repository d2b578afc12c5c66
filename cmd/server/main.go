package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shroomd.gg/internal/act"
	"shroomd.gg/internal/config"
	"shroomd.gg/internal/crypto"
	"shroomd.gg/internal/game"
	"shroomd.gg/internal/journal"
	"shroomd.gg/internal/protocol"
	"shroomd.gg/internal/session"
	"shroomd.gg/internal/store"
	"shroomd.gg/internal/transport/obs"
	"shroomd.gg/internal/transport/tcp"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/server.yaml", "config file path")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	jw := journal.NewWriter(filepath.Join(cfg.DataDir, "journal"), "runtime")
	defer jw.Close()

	st, err := store.OpenSQLite(cfg.CharacterStore)
	if err != nil {
		logger.Fatalf("open character store: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, st, jw, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, st *store.SQLiteStore, jw *journal.Writer, logger *log.Logger) error {
	clock := act.GlobalClock()
	sched, err := act.NewScheduler(clock, time.Duration(cfg.TickIntervalMs)*time.Millisecond, logger)
	if err != nil {
		return err
	}

	var lastActors atomic.Int64
	sched.OnTickDone(func(info act.TickInfo) {
		lastActors.Store(int64(info.Actors))
		jw.Record(journal.TickEntry{
			Tick:          info.Tick.Millis(),
			DurationMicro: info.Duration.Microseconds(),
			Actors:        info.Actors,
		})
	})

	mgr := session.NewManager(st, session.DefaultTicketTTL, logger, jw)

	roomSrv := game.NewRoomServer(sched, logger)
	defer roomSrv.Close()

	world, _, err := roomSrv.CreateWorld(0, 0)
	if err != nil {
		return err
	}

	hsCfg := session.HandshakeConfig{
		Version:    crypto.Version(cfg.Version),
		SubVersion: cfg.SubVersion,
		Locale:     protocol.Locale(cfg.Locale),
	}
	advertiseHost := cfg.ListenAddress
	if advertiseHost == "" {
		advertiseHost = "127.0.0.1"
	}

	group, ctx := errgroup.WithContext(ctx)

	// One lobby room (map 0) per channel; every session migrated onto
	// the channel joins that room.
	var endpoints []session.ChannelEndpoint
	for i := 0; i < cfg.Channels; i++ {
		chID := game.ChannelID(i + 1)
		port := cfg.ChannelPortStart + i

		ch, _, err := roomSrv.CreateChannel(world, chID, 0)
		if err != nil {
			return err
		}
		room, _, _, err := roomSrv.CreateRoom(ctx, ch, game.RoomID{Map: 0}, 0)
		if err != nil {
			return err
		}

		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.ListenAddress, port))
		if err != nil {
			return fmt.Errorf("bind channel %d: %w", chID, err)
		}
		chLogger := log.New(os.Stdout, fmt.Sprintf("[channel %d] ", chID), log.LstdFlags|log.Lmicroseconds)
		handler := session.NewChannelHandler(mgr, hsCfg, room, chLogger)
		group.Go(func() error { return tcp.Serve(ctx, ln, chLogger, handler.Handle) })
		logger.Printf("channel %d listening on %s", chID, ln.Addr())

		endpoints = append(endpoints, session.ChannelEndpoint{ID: chID, Host: advertiseHost, Port: uint16(port)})
	}

	loginLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.LoginPort))
	if err != nil {
		return fmt.Errorf("bind login: %w", err)
	}
	loginLogger := log.New(os.Stdout, "[login] ", log.LstdFlags|log.Lmicroseconds)
	login := session.NewLoginHandler(mgr, hsCfg, endpoints, loginLogger)
	group.Go(func() error { return tcp.Serve(ctx, loginLn, loginLogger, login.Handle) })
	logger.Printf("login listening on %s", loginLn.Addr())

	group.Go(func() error { return sched.Run(ctx) })

	if cfg.ObserverListen != "" {
		provider := &statsProvider{sched: sched, mgr: mgr, actors: &lastActors}
		obsSrv := obs.NewServer(provider, time.Second, logger)
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/ws", obsSrv.Handler())
		httpSrv := &http.Server{Addr: cfg.ObserverListen, Handler: mux}
		group.Go(func() error {
			err := httpSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		group.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutCtx)
		})
		logger.Printf("observer listening on %s", cfg.ObserverListen)
	}

	return group.Wait()
}

type statsProvider struct {
	sched  *act.Scheduler
	mgr    *session.Manager
	actors *atomic.Int64
}

func (p *statsProvider) RuntimeStats() obs.StatsMsg {
	info := p.sched.Stats()
	return obs.StatsMsg{
		Tick:           info.Tick.Millis(),
		TickDurationUs: info.Duration.Microseconds(),
		Actors:         int(p.actors.Load()),
		Sessions:       p.mgr.SessionCount(),
		Tickets:        p.mgr.TicketCount(),
	}
}
