package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pokezero/agent"
	"pokezero/communication/server"
	"pokezero/control"
	"pokezero/dex"
	"pokezero/engine"
	"pokezero/gamemaster"
	"pokezero/metrics"
	"pokezero/player"
	"pokezero/store"
	"pokezero/utils"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type config struct {
	name       string
	players    [2]string
	node       string
	script     string
	data       string
	db         string
	listen     string
	policy     string
	seed       uint64
	force      bool
	maxTurns   int
	logLevel   string
	metricsOut string
}

func main() {
	cfg := config{players: [2]string{"p1", "p2"}}
	flag.StringVar(&cfg.name, "name", "pokezero", "Manager's name, also used for its socket")
	flag.StringVar(&cfg.players[0], "p1", cfg.players[0], "First player's name")
	flag.StringVar(&cfg.players[1], "p2", cfg.players[1], "Second player's name")
	flag.StringVar(&cfg.node, "node", "node", "Engine interpreter")
	flag.StringVar(&cfg.script, "script", "./pokemon-showdown/.sim-dist/examples/battle-managing.js", "Engine script; empty to wait for an engine started elsewhere")
	flag.StringVar(&cfg.data, "data", "./data", "Directory with the reference tables")
	flag.StringVar(&cfg.db, "db", "", "SQLite file to archive battles in")
	flag.StringVar(&cfg.listen, "listen", "", "Address for the control API, e.g. :8080")
	flag.StringVar(&cfg.policy, "policy", "random", "Own-move policy: random or first")
	flag.Uint64Var(&cfg.seed, "seed", uint64(time.Now().UnixNano()), "Seed for the random policy")
	flag.BoolVar(&cfg.force, "force", true, "Remove stale socket files")
	flag.IntVar(&cfg.maxTurns, "max-turns", 0, "Maximum engine requests per battle")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level")
	flag.StringVar(&cfg.metricsOut, "metrics-out", "", "Directory for CSV turn metrics")
	flag.Parse()

	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", cfg.logLevel)
		os.Exit(2)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("battle failed")
	}
}

func newPolicy(cfg config, i int) (agent.Policy, error) {
	switch cfg.policy {
	case "random":
		return agent.NewRandom(cfg.seed + uint64(i)), nil
	case "first":
		return agent.NewFirst(), nil
	}
	return nil, fmt.Errorf("unknown policy %q", cfg.policy)
}

func listen(name string, force bool) (*server.Server, error) {
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	s := server.New(utils.SocketPath(name))
	if err := s.Connect(force); err != nil {
		return nil, err
	}
	log.Debug().Msgf("%s listening on %s", name, s.Path())
	return s, nil
}

func run(ctx context.Context, cfg config) error {
	tables, err := dex.Load(cfg.data)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	players := make([]*player.Player, len(cfg.players))
	paths := make([]string, 0, len(cfg.players)+1)
	for i, name := range cfg.players {
		comm, err := listen(name, cfg.force)
		if err != nil {
			return err
		}
		defer comm.Close()
		policy, err := newPolicy(cfg, i)
		if err != nil {
			return err
		}
		players[i], err = player.New(name, comm, policy, player.WithCollector(collector))
		if err != nil {
			return err
		}
		paths = append(paths, comm.Path())
	}

	comm, err := listen(cfg.name, cfg.force)
	if err != nil {
		return err
	}
	defer comm.Close()

	hub := control.NewHub()
	defer hub.Close()
	directives := gamemaster.NewDirectives()
	opts := []gamemaster.Option{
		gamemaster.WithPublisher(hub),
		gamemaster.WithCollector(collector),
		gamemaster.WithDirector(directives),
		gamemaster.WithMaxTurns(cfg.maxTurns),
	}

	if cfg.db != "" {
		db, err := store.NewSQLiteDB(cfg.db)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return err
		}
		opts = append(opts, gamemaster.WithRecorder(db))
	}

	manager, err := gamemaster.New(cfg.name, tables, players, opts...)
	if err != nil {
		return err
	}

	if cfg.listen != "" {
		srv := &http.Server{Addr: cfg.listen, Handler: control.NewServer(manager, directives, hub).Routes()}
		go func() {
			log.Info().Msgf("control API listening on %s", cfg.listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("control API stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var process *engine.Process
	if cfg.script != "" {
		args := append([]string{cfg.script, comm.Path()}, paths...)
		process = engine.NewProcess(cfg.node, args...)
		if err := process.Start(ctx); err != nil {
			return err
		}
	} else {
		log.Info().Msgf("waiting for an engine on %s (players %v)", comm.Path(), paths)
	}

	err = manager.Start(ctx, comm)
	comm.Close()
	if process != nil {
		if werr := process.Wait(); werr != nil {
			log.Warn().Err(werr).Msg("engine did not exit cleanly")
		}
	}

	if cfg.metricsOut != "" {
		if werr := writeMetrics(cfg.metricsOut, manager, collector); werr != nil {
			log.Error().Err(werr).Msg("failed to write metrics")
		}
	}
	return err
}

func writeMetrics(dir string, manager *gamemaster.Manager, collector metrics.Collector) error {
	writer, err := metrics.NewWriter(dir)
	if err != nil {
		return err
	}
	if err := writer.WriteTurnRecords(manager.TurnRecords()); err != nil {
		return err
	}
	record := metrics.BattleRecord{ID: manager.BattleID(), Winner: manager.Winner(), BattleMetric: collector.Complete()}
	if err := writer.WriteBattleRecords([]metrics.BattleRecord{record}); err != nil {
		return err
	}
	log.Info().Msgf("metrics written to %s", writer.Dir())
	return nil
}
