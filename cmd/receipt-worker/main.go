package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	"github.com/jumpindia/funzone-pos/internal/adapters/rabbit"
	"github.com/jumpindia/funzone-pos/internal/config"
	"github.com/jumpindia/funzone-pos/internal/notify"
	"github.com/jumpindia/funzone-pos/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PGDSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "receipts.q", "sale.completed")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := &ReceiptWorker{repo: repo, logger: logger}
	go worker.Run(ctx, consumer)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown receipt worker")
}

// ReceiptWorker renders a receipt for every completed sale and hands
// it to the delivery channel. Delivery is a log line until a mail
// provider is wired up.
type ReceiptWorker struct {
	repo   *crdb.Repository
	logger observability.Logger
}

func (w *ReceiptWorker) Run(ctx context.Context, consumer *rabbit.Consumer) {
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		w.logger.Error("failed to start consuming", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := w.handle(ctx, d); err != nil {
				w.logger.Error("failed to process receipt", err)
				d.Nack(false, false)
				continue
			}
			d.Ack(false)
		}
	}
}

func (w *ReceiptWorker) handle(ctx context.Context, d amqp.Delivery) error {
	var event struct {
		SaleID uuid.UUID `json:"sale_id"`
	}
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return err
	}

	sale, err := w.repo.GetSale(ctx, event.SaleID)
	if err != nil {
		return err
	}

	html, err := notify.RenderReceipt(sale)
	if err != nil {
		return err
	}
	sms := notify.RenderReceiptText(sale)

	w.logger.WithField("sale_id", sale.ID.String()).
		WithField("receipt_no", notify.ReceiptNo(sale)).
		Info("receipt rendered", len(html), "html bytes,", len(sms), "sms bytes")
	return nil
}
