// automationd is the composed server binary: it replaces the teacher's
// split root main.go / cmd/engine / cmd/remote_server with one process
// that loads config, opens storage, wires the rule engine and RPC core,
// and starts every configured transport.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"automationd/internal/config"
	"automationd/internal/devices"
	"automationd/internal/discovery"
	"automationd/internal/ids"
	"automationd/internal/logging"
	"automationd/internal/relayauth"
	"automationd/internal/rpccore"
	"automationd/internal/rpccore/handlers"
	"automationd/internal/ruleengine"
	"automationd/internal/rulestore"
	"automationd/internal/transport"
	"automationd/internal/userstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServerName)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openRuleStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("open rule store", zap.Error(err))
	}

	userPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect to postgres for user store", zap.Error(err))
	}
	users := userstore.New(userPool)
	if err := users.EnsureSchema(ctx); err != nil {
		log.Fatal("ensure user schema", zap.Error(err))
	}
	pushButton := userstore.NewPushButtonAuth()

	// engineRef lets the device registry's state-change callback reach the
	// rule engine despite being constructed before it exists.
	var engineRef *ruleengine.Engine
	registry, err := openDeviceRegistry(cfg, log, func(ctx context.Context, device ids.DeviceId) {
		if engineRef != nil {
			engineRef.RecheckStates(ctx, device)
		}
	})
	if err != nil {
		log.Fatal("open device registry", zap.Error(err))
	}

	dispatcher := ruleengine.NewAsyncDispatcher(cfg.RedisAddr, log)
	defer dispatcher.Close()

	worker := ruleengine.NewDispatchWorker(registry, log)
	asynqServer := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{Concurrency: 4})
	go func() {
		if err := asynqServer.Run(worker.NewMux()); err != nil {
			log.Error("action dispatch worker stopped", zap.Error(err))
		}
	}()
	defer asynqServer.Shutdown()

	// The multiplexer is an rpccore.Notifier; the core is its Dispatcher.
	// Each needs the other, so the multiplexer is built first and bound to
	// the core once it exists.
	mux := transport.NewMultiplexer(nil, log)
	core := rpccore.NewCore(cfg.ServerName, mux, log)
	mux.SetCore(core)
	core.SetPushButtonCanceller(pushButton)

	redisClient := redisv9.NewClient(&redisv9.Options{Addr: cfg.RedisAddr})
	seq := rpccore.NewRedisSequencer(redisClient)
	notificationBus := rpccore.NewBus(core, seq, log)

	engine := ruleengine.New(store, registry, dispatcher, notificationBus, log)
	engineRef = engine
	if err := engine.Load(ctx); err != nil {
		log.Fatal("load rules", zap.Error(err))
	}

	core.RegisterHandler(handlers.NewJSONRPCHandler(core))
	core.RegisterHandler(handlers.NewRulesHandler(engine))
	core.RegisterHandler(handlers.NewUsersHandler(users, pushButton, notificationBus))

	ticker := ruleengine.NewTicker(engine, log)
	if err := ticker.Start(ctx); err != nil {
		log.Fatal("start rule ticker", zap.Error(err))
	}
	defer ticker.Stop()

	if cfg.TCPLine.Address != "" {
		mux.Add(transport.NewTCPLine(cfg.TCPLine.Address, cfg.TCPLine.AuthRequired, log))
	}
	if cfg.WebSocket.Address != "" {
		mux.Add(transport.NewWebSocket(cfg.WebSocket.Address, cfg.WebSocketPath, cfg.WebSocket.AuthRequired, log))
	}
	if cfg.CloudRelayEnabled && cfg.CloudRelayURL != "" {
		issuer := relayauth.NewIssuer(cfg.JWTSecret, cfg.AsyncReplyTimeout)
		if _, err := issuer.IssueAgentToken(cfg.CloudRelayAgentID); err != nil {
			log.Warn("issue cloud relay agent token", zap.Error(err))
		}
		mux.Add(transport.NewCloudRelay(cfg.CloudRelayURL, cfg.CloudRelayAgentID, true, log))
	}
	if err := mux.StartAll(); err != nil {
		log.Fatal("start transports", zap.Error(err))
	}
	defer mux.StopAll()

	mdnsServer, err := discovery.Start(cfg.ServerName+".local", log)
	if err != nil {
		log.Warn("mDNS discovery unavailable", zap.Error(err))
	} else {
		defer mdnsServer.Close()
	}

	log.Info("automationd started", zap.String("server", cfg.ServerName))
	<-ctx.Done()
	log.Info("shutting down")
}

func openRuleStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (rulestore.Store, error) {
	if cfg.PostgresDSN == "" {
		log.Warn("DATABASE_URL not set, falling back to file-backed rule store", zap.String("dir", "./rules"))
		return rulestore.NewFileStore("./rules")
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	store := rulestore.NewSQLStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func openDeviceRegistry(cfg *config.Config, log *zap.Logger, onStateSet func(context.Context, ids.DeviceId)) (devices.DeviceRegistry, error) {
	if cfg.MQTTBroker == "" {
		log.Warn("MQTT_BROKER not set, falling back to in-memory device registry")
		return devices.NewMemory(), nil
	}
	bridge, err := devices.NewMQTTBridge(devices.MQTTBridgeOptions{
		Broker:     cfg.MQTTBroker,
		ClientID:   cfg.MQTTClientID,
		RedisAddr:  cfg.RedisAddr,
		OnStateSet: onStateSet,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := bridge.Start(); err != nil {
		return nil, err
	}
	return bridge, nil
}
