package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DedS3t/monopoly-arena/app/controllers"
	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/pkg/routes"
	"github.com/DedS3t/monopoly-arena/platform/agent"
	"github.com/DedS3t/monopoly-arena/platform/cache"
	"github.com/DedS3t/monopoly-arena/platform/config"
	"github.com/DedS3t/monopoly-arena/platform/database"
	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/DedS3t/monopoly-arena/platform/events"
	"github.com/DedS3t/monopoly-arena/platform/logging"
	"github.com/DedS3t/monopoly-arena/platform/queries"
	"github.com/DedS3t/monopoly-arena/platform/queue"
	"github.com/DedS3t/monopoly-arena/platform/runner"
	socket "github.com/DedS3t/monopoly-arena/platform/sockets"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logrus.WithField("component", "main")

	var (
		store engine.Store
		users queries.UserStore
	)
	switch cfg.Database.Store {
	case "memory":
		store = queries.NewMemoryStore(cfg.Database.LockTimeout)
		users = queries.NewMemoryUserStore()
		log.Warn("using in-memory store, nothing survives a restart")
	default:
		db := database.PostgreSQLConnection(cfg.Database)
		defer db.Close()
		if err := database.CreateSchema(db); err != nil {
			log.WithError(err).Fatal("create schema")
		}
		store = queries.NewGameStore(db, cfg.Database.LockTimeout, cfg.Database.StatementTimeout)
		users = queries.NewUserStore(db)
	}

	eng := engine.New(store,
		engine.WithRetries(cfg.Database.TxRetries, 50*time.Millisecond),
		engine.WithStartingBalance(cfg.StartingBalance),
		engine.WithSeed(time.Now().UnixNano()),
	)

	var mirror *cache.GameMirror
	if cfg.RedisURL != "" {
		pool := cache.CreateRedisPool(cfg.RedisURL)
		defer pool.Close()
		mirror = cache.NewGameMirror(pool)
	}

	bus := events.NewFanout()
	if cfg.RabbitMQURL != "" {
		publisher := queue.NewPublisher(cfg.RabbitMQURL)
		defer publisher.Close()
		bus.Add(publisher)
	}

	kind := "heuristic"
	if cfg.Runner.DecisionURL != "" {
		kind = "remote"
	}
	decider, err := agent.NewSource(kind, cfg.Runner.DecisionURL, cfg.Runner.DecisionTimeout)
	if err != nil {
		log.WithError(err).Fatal("decision source")
	}

	var runnerOpts []runner.Option
	socketOpts := []socket.Option{socket.WithTokenSecret(cfg.JWTSecret)}
	if mirror != nil {
		runnerOpts = append(runnerOpts, runner.WithMirror(mirror))
		socketOpts = append(socketOpts, socket.WithTurnMirror(mirror))
	}
	sched := runner.NewScheduler(eng, decider, bus, runner.Config{
		Interval:    cfg.Runner.Interval,
		TickTimeout: cfg.Runner.TickTimeout,
		RoundCap:    cfg.Runner.RoundCap,
	}, runnerOpts...)

	sock, err := socket.NewServer(eng, users, bus, socketOpts...)
	if err != nil {
		log.WithError(err).Fatal("socket server")
	}
	bus.Add(sock)
	go sock.Serve()
	socketHTTP := sock.HTTPServer(":"+cfg.SocketPort, cfg.AllowedOrigins)
	go func() {
		if err := socketHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("socket listener stopped")
		}
	}()

	resume(eng, sched, log)

	game := controllers.NewGameController(eng, sched, bus, nil)
	if mirror != nil {
		game.Mirror = mirror
	}
	auth := controllers.NewAuthController(users, cfg.JWTSecret)
	protected := routes.Protected(cfg.JWTSecret)

	app := fiber.New()
	app.Use(cors.New())
	routes.AuthRoutes(app, auth, protected)
	routes.GameRoutes(app, game, protected)

	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.WithError(err).Error("http listener stopped")
		}
	}()
	log.WithFields(logrus.Fields{"app_port": cfg.AppPort, "socket_port": cfg.SocketPort, "store": cfg.Database.Store}).Info("server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")

	sched.Shutdown()
	if err := app.Shutdown(); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := socketHTTP.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("socket shutdown")
	}
	sock.Close()
}

// resume hands agent games left running by a previous process back to the
// runner.
func resume(eng *engine.Engine, sched *runner.Scheduler, log *logrus.Entry) {
	games, err := eng.Games(context.Background(), models.StatusRunning)
	if err != nil {
		log.WithError(err).Warn("could not list running games")
		return
	}
	for _, g := range games {
		if g.Mode != models.ModeAgent {
			continue
		}
		if err := sched.Start(g.Id); err != nil {
			log.WithField("game_id", g.Id).WithError(err).Warn("resume failed")
		}
	}
}
