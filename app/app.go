package app

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bookstack/library-service/config"
	"github.com/bookstack/library-service/internal/handler"
	"github.com/bookstack/library-service/internal/repository"
	"github.com/bookstack/library-service/internal/server"
	"github.com/bookstack/library-service/internal/service"
	"github.com/bookstack/library-service/migrations"
	"github.com/bookstack/library-service/pkg/kafka"
	"github.com/bookstack/library-service/pkg/logger"
	"github.com/bookstack/library-service/pkg/postgres"

	"github.com/IBM/sarama"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "library")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}
	svc := service.NewService(repo, cfg.Borrow, log)

	var producer sarama.SyncProducer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
	}

	h := handler.New(svc, producer, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run()
	})
	if cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.LoansConsumerGroup)
		if err != nil {
			log.Fatal("kafka.NewConsumer", zap.Error(err))
		}
		g.Go(func() error {
			kafka.Consume(gCtx, consumer, handler.NewConsumer(svc.RecordLoanEvent, log), kafka.LoansTopic, log)
			return consumer.Close()
		})
	}

	<-ctx.Done()
	log.Debug("Graceful shutdown")

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	if producer != nil {
		_ = producer.Close()
	}
	_ = g.Wait()
	db.Close()
	log.Info("Graceful shutdown finished")
}
