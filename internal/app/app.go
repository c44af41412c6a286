package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"pubkey-quest/engine/internal/clock"
	"pubkey-quest/engine/internal/combat"
	"pubkey-quest/engine/internal/config"
	"pubkey-quest/engine/internal/game"
	"pubkey-quest/engine/internal/netclient"
	"pubkey-quest/engine/internal/observer"
	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/state"
	"pubkey-quest/engine/internal/stub"
	"pubkey-quest/engine/internal/telemetry"
	"pubkey-quest/engine/internal/tick"
	"pubkey-quest/engine/logging"
	loggingSinks "pubkey-quest/engine/logging/sinks"
)

const routerCloseTimeout = 5 * time.Second

// Options lets binaries override pieces of the wiring. A nil Config
// falls back to the environment.
type Options struct {
	Config *config.Config
	Logger *log.Logger
}

// Run wires the full engine and blocks until ctx is canceled or a
// component fails: logging router, optional in-process stub server,
// HTTP client, game engine, and the diagnostics observer.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	var cfg config.Config
	if opts.Config != nil {
		cfg = *opts.Config
		cfg.Normalize()
	} else {
		parsed, err := config.ParseEnv()
		if err != nil {
			return err
		}
		cfg = parsed
	}

	router, closeRouter, err := buildRouter(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRouter()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Stub {
		world := stub.NewWorld(stub.Config{Seed: cfg.StubSeed}, nil)
		stubSrv := stub.NewServer(world, stub.ServerConfig{Addr: cfg.StubAddr}, logger)
		g.Go(func() error { return stubSrv.Run(ctx) })
		waitForBind(stubSrv.Addr)
		addr := stubSrv.Addr()
		if addr == "" {
			addr = cfg.StubAddr
		}
		cfg.ServerURL = "http://" + addr
		if !cfg.HasSession() {
			cfg.Npub, cfg.SaveID = "npub1local", "save-local"
		}
	}

	client := netclient.New(cfg.ServerURL, cfg.RequestTimeout)
	if cfg.HasSession() {
		client = client.WithSession(netclient.Session{Npub: cfg.Npub, SaveID: cfg.SaveID})
	} else {
		logger.Printf("no session credentials; sync idles until QUEST_NPUB and QUEST_SAVE_ID are set")
	}

	store := state.NewStore()
	journal := patch.NewJournal(cfg.JournalCap, cfg.JournalMaxAge, nil)
	counters := telemetry.NewCounters()

	// The observer is built after the engine because it snapshots engine
	// state; Broadcast on a nil observer is a no-op, so the hooks are
	// safe in the window between the two.
	var obs *observer.Server

	engine := game.New(game.Deps{
		Transport: client,
		Store:     store,
		Journal:   journal,
		Publisher: router,
		Counters:  counters,
		Weapons:   combat.StaticWeapon(combat.WeaponProfile{Name: "Rusted Shortsword", Reach: 1}),
		Logger:    logger,
		Actor:     logging.EntityRef{ID: cfg.Npub, Kind: logging.EntityKindPlayer},
	}, game.Config{
		TickPeriod:    cfg.TickPeriod,
		FrameInterval: cfg.FrameInterval,
	}, game.Hooks{
		OnClock: func(snap clock.Snapshot) {
			obs.Broadcast(observer.Message{Type: observer.MessageClock, Payload: snap})
		},
		OnTick: func(result tick.Result) {
			obs.Broadcast(observer.Message{Type: observer.MessageTick, Tick: result.Tick, Payload: result})
		},
		OnCombat: func(view combat.View) {
			obs.Broadcast(observer.Message{Type: observer.MessageCombat, Payload: view})
		},
		OnCombatEnd: func(outcome combat.Outcome) {
			obs.Broadcast(observer.Message{Type: observer.MessageCombatEnd, Payload: outcome})
		},
		OnNotice: func(message string) {
			obs.Broadcast(observer.Message{Type: observer.MessageNotice, Payload: map[string]string{"text": message}})
		},
		OnLogLine: func(line combat.RevealedLine) {
			obs.Broadcast(observer.Message{Type: observer.MessageLogLine, Payload: line})
		},
	})
	if engine == nil {
		return fmt.Errorf("engine wiring incomplete")
	}

	if cfg.ObserverAddr != "" {
		obs = observer.New(observer.Deps{
			Source:   engine,
			Counters: counters,
			Journal:  journal,
			Router:   router,
			Logger:   logger,
		}, observer.Config{Addr: cfg.ObserverAddr, EnablePprof: cfg.ObserverPprof})
		g.Go(func() error { return obs.Run(ctx) })
	}

	engine.Start(ctx)
	defer engine.Close()

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	logger.Printf("engine running against %s", cfg.ServerURL)
	return g.Wait()
}

// buildRouter assembles the logging fan-out: console always, plus an
// NDJSON file when the json sink is enabled. The returned closer flushes
// the router and releases the file.
func buildRouter(cfg config.Config, logger *log.Logger) (*logging.Router, func(), error) {
	lc := cfg.Logging()
	sinkMap := map[string]logging.Sink{
		"console": loggingSinks.NewConsole(os.Stdout),
	}
	var jsonFile *os.File
	if lc.HasSink("json") {
		path := lc.JSON.FilePath
		if path == "" {
			path = "quest-events.ndjson"
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open json log %s: %w", path, err)
		}
		jsonFile = file
		sinkMap["json"] = loggingSinks.NewJSON(file, lc.JSON.FlushInterval)
	}

	router, err := logging.NewRouter(lc, logging.SystemClock{}, logger, sinkMap)
	if err != nil {
		if jsonFile != nil {
			jsonFile.Close()
		}
		return nil, nil, fmt.Errorf("construct logging router: %w", err)
	}

	closer := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), routerCloseTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("close logging router: %v", cerr)
		}
		if jsonFile != nil {
			jsonFile.Close()
		}
	}
	return router, closer, nil
}

// waitForBind polls an Addr accessor until the listener reports itself
// bound, so the first sync does not race a server that is still
// starting.
func waitForBind(addr func() string) {
	deadline := time.Now().Add(2 * time.Second)
	for addr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}
