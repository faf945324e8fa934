package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"calc/internal/bus"
	"calc/internal/engine"
	"calc/internal/errors"
	"calc/internal/gateway"
	"calc/internal/host"
	"calc/internal/obs"
	"calc/internal/ops"
	"calc/internal/recorder"
	"calc/internal/scheduler"
	"calc/internal/store"
	"calc/pkg/conn"
)

func main() {
	configPath := flag.String("config", "strategyd.yaml", "Path to YAML config")
	invokePath := flag.String("invoke", "", "Handle the request in this file (- for stdin), print the responses and exit")
	serve := flag.Bool("serve", false, "Consume requests from AMQP until shutdown")
	profile := flag.Bool("profile", false, "Push profiles to the configured pyroscope server")
	replayDir := flag.String("replay-dir", "", "Journal directory to rebuild statistics from, then exit")
	replaySnapshot := flag.String("replay-snapshot", "", "Snapshot the replay starts from")
	replayVerify := flag.String("replay-verify", "", "Snapshot the rebuilt statistics must match")
	flag.Parse()

	ctx := context.Background()
	if *replayDir != "" {
		if err := runReplay(ctx, *replayDir, *replaySnapshot, *replayVerify); err != nil {
			log.Fatalf("replay failed: %v", err)
		}
		return
	}

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *profile {
		if cfg.Pyroscope == nil {
			log.Fatalf("profile requested but pyroscope is not configured")
		}
		profiler, err := startProfiler(*cfg.Pyroscope)
		if err != nil {
			log.Fatalf("start profiler failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	rt, err := open(ctx, cfg)
	if err != nil {
		log.Fatalf("start failed: %v", err)
	}
	defer rt.close(ctx)

	switch {
	case *invokePath != "":
		err = runInvoke(ctx, rt, *invokePath)
	case *serve:
		err = runServe(ctx, rt, cfg)
	default:
		err = errors.New("nothing to do: pass -invoke, -serve or -replay-dir")
	}
	if err != nil {
		log.Fatalf("strategyd failed: %v", err)
	}
}

func startProfiler(cfg ops.PyroscopeConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Application,
		ServerAddress:   cfg.Address,
		Tags:            cfg.Tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

// app holds everything open gives back to close.
type app struct {
	daemon   *daemon
	memory   *store.Memory
	snapshot string
	writer   *recorder.Writer
	closers  []io.Closer
}

func open(ctx context.Context, cfg ops.Loaded) (*app, error) {
	rt := &app{snapshot: cfg.Store.Snapshot}

	querier, err := loadWorld(cfg.World)
	if err != nil {
		return nil, err
	}

	var (
		st      store.Store
		lastSeq uint64
	)
	switch cfg.Store.Driver {
	case ops.StorePostgres:
		pg, err := conn.NewPostgres(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pg)
		repo := store.NewPostgres(pg.DB())
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		st = repo
	default:
		rt.memory = store.NewMemory()
		if cfg.Store.Snapshot != "" {
			snap, err := store.ReadSnapshot(cfg.Store.Snapshot)
			switch {
			case err == nil:
				if err := rt.memory.ApplySnapshot(snap); err != nil {
					return nil, err
				}
				lastSeq = snap.LastSeq
				logs.Infof("restored %d strategies from %s", len(snap.Records), cfg.Store.Snapshot)
			case !errors.Is(err, os.ErrNotExist):
				return nil, err
			}
		}
		st = rt.memory
	}

	d := &daemon{
		engine:    engine.New(st, querier, engine.WithMetrics(obs.NewMetrics())),
		scheduler: cfg.Scheduler,
		manager:   cfg.Manager,
		now:       time.Now,
	}

	if cfg.Journal != nil {
		w, err := recorder.NewWriter(*cfg.Journal)
		if err != nil {
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			return nil, err
		}
		rt.writer = w
		d.journal = recorder.NewJournal(w, lastSeq, obs.NewTraceGenerator(0))
	}

	if cfg.Redis != nil {
		client, err := conn.NewRedis(ctx, cfg.Redis.RedisOption)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client)
		d.triggers = scheduler.NewRedisStore(client, cfg.Redis.Prefix)
	}

	rt.daemon = d
	return rt, nil
}

func loadWorld(path string) (*host.Snapshot, error) {
	if path == "" {
		return host.NewSnapshot(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open world %s", path)
	}
	defer f.Close()
	st, err := host.ReadState(f)
	if err != nil {
		return nil, err
	}
	return host.FromState(st), nil
}

func (rt *app) close(ctx context.Context) {
	if rt.memory != nil && rt.snapshot != "" {
		var lastSeq uint64
		if rt.daemon.journal != nil {
			lastSeq = rt.daemon.journal.LastSeq()
		}
		snap, err := rt.memory.SnapshotWithMeta(ctx, lastSeq)
		if err == nil {
			err = store.WriteSnapshot(rt.snapshot, snap)
		}
		if err != nil {
			logs.Errorf("write snapshot %s, err: %+v", rt.snapshot, err)
		}
	}
	if rt.writer != nil {
		if err := rt.writer.Close(); err != nil {
			logs.Errorf("close journal, err: %+v", err)
		}
	}
	for _, c := range rt.closers {
		_ = c.Close()
	}
}

func runInvoke(ctx context.Context, rt *app, path string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return errors.Wrapf(err, "read request %s", path)
	}
	var req host.Request
	if err := sonic.Unmarshal(data, &req); err != nil {
		return errors.Wrap(err, "decode request")
	}
	if req.Contract == "" {
		req.Contract = req.Env.Contract
	}

	out := &printer{w: os.Stdout}
	rt.daemon.gateway = gateway.NewGateway(gateway.GatewayConfig{Session: "invoke"}, out)
	rt.daemon.out = out

	var failed error
	rt.daemon.handle(ctx, bus.Envelope{Request: req, Done: func(resp host.Response) {
		if err := out.Publish(ctx, resp); err != nil {
			failed = err
		} else if resp.Failed() {
			failed = errors.Errorf("request rejected: %s", resp.Error)
		}
	}})
	return failed
}

func runServe(ctx context.Context, rt *app, cfg ops.Loaded) error {
	if cfg.AMQP == nil {
		return errors.New("serve needs an amqp section")
	}
	broker, err := conn.NewAMQP(cfg.AMQP.AMQPOption)
	if err != nil {
		return err
	}
	defer broker.Close()
	ch, err := broker.Channel()
	if err != nil {
		return err
	}

	relay := bus.NewRelay(ch, bus.RelayConfig{
		Exchange:     cfg.AMQP.Exchange,
		RequestQueue: cfg.AMQP.RequestQueue,
		ResponseKey:  cfg.AMQP.ResponseKey,
		Consumer:     "strategyd",
	})
	if err := relay.Declare(); err != nil {
		return err
	}

	gw := gateway.NewGateway(gateway.GatewayConfig{Session: "amqp", ResendOnReconnect: true}, relay)
	rt.daemon.gateway = gw
	rt.daemon.out = gw

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := bus.NewQueue(cfg.Queue)
	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Run(ctx, func(e bus.Envelope) { rt.daemon.handle(ctx, e) })
	}()

	consumeErr := make(chan error, 1)
	go func() { consumeErr <- relay.Consume(ctx, queue, gw) }()

	logs.Infof("serving %s on exchange %s", cfg.AMQP.RequestQueue, cfg.AMQP.Exchange)
	select {
	case <-sys.Shutdown():
		logs.Info("shutdown")
		err = nil
	case err = <-consumeErr:
	}
	cancel()
	queue.Close()
	<-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runReplay(ctx context.Context, dir, snapshotPath, verifyPath string) error {
	var snap store.Snapshot
	if snapshotPath != "" {
		var err error
		if snap, err = store.ReadSnapshot(snapshotPath); err != nil {
			return err
		}
	}
	rebuilt, last, err := engine.RebuildStatistics(ctx, snap, dir)
	if err != nil {
		return err
	}
	if verifyPath != "" {
		expected, err := store.ReadSnapshot(verifyPath)
		if err != nil {
			return err
		}
		if err := store.CompareStatistics(expected.StatisticsOf(), rebuilt); err != nil {
			return err
		}
		logs.Infof("statistics of %d strategies match %s", len(rebuilt), verifyPath)
	}

	b, err := sonic.ConfigStd.MarshalIndent(rebuilt, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode statistics")
	}
	logs.Infof("replayed %s through seq %d", dir, last)
	_, err = os.Stdout.Write(append(b, '\n'))
	return err
}
