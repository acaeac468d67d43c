// Command vast-sink subscribes to the NATS subject a vast-capture run
// ships segments and statistics to, decodes them, and re-archives
// segments via the gob/ClickHouse consumers while printing statistics,
// following the teacher's cmd/ns-probe/main.go runSubscriber shape.
package main

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/awesome-security/vast/internal/config"
	"github.com/awesome-security/vast/internal/consumer"
	vast "github.com/awesome-security/vast/internal/vast"
	"github.com/awesome-security/vast/internal/vlog"
)

func main() {
	configPath := flag.String("config", "configs/vast-sink.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := vlog.NewWithLevel(cfg.Log.Level)

	archive, closeArchive, err := buildArchive(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build archive consumer: %v", err)
	}
	defer closeArchive()

	nc, err := nats.Connect(cfg.Consumer.NATS.URL)
	if err != nil {
		log.Fatalf("failed to connect to nats at %s: %v", cfg.Consumer.NATS.URL, err)
	}
	defer nc.Drain()
	logger.Infof("connected to NATS server at %s", cfg.Consumer.NATS.URL)

	subject := cfg.Consumer.NATS.Subject
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		handleSegment(context.Background(), archive, logger, msg.Data)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to %s: %v", subject, err)
	}
	defer sub.Unsubscribe()
	logger.Infof("subscribed to %s, waiting for segments...", subject)

	statsSub, err := nc.Subscribe(subject+".stats", func(msg *nats.Msg) {
		handleStatistics(logger, msg.Data)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to %s.stats: %v", subject, err)
	}
	defer statsSub.Unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Infof("shutdown signal received, cleaning up...")
}

func handleSegment(ctx context.Context, archive consumer.Consumer, logger vlog.Logger, data []byte) {
	var seg vast.Segment
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&seg); err != nil {
		logger.Errorf("failed to decode segment: %v", err)
		return
	}
	logger.Infof("received segment %s with %d events", seg.ID, seg.EventCount())
	if archive == nil {
		return
	}
	if err := archive.Segment(ctx, seg); err != nil {
		logger.Errorf("failed to archive segment %s: %v", seg.ID, err)
	}
}

func handleStatistics(logger vlog.Logger, data []byte) {
	var payload struct {
		EventsPerSecond float64 `json:"events_per_second"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Errorf("failed to decode statistics message: %v", err)
		return
	}
	logger.Infof("ingestion rate: %.2f events/sec", payload.EventsPerSecond)
}

// buildArchive wires the optional re-archiving consumers (gob, ClickHouse);
// a vast-sink deployment need not persist anything, in which case nil is
// returned and received segments are only logged.
func buildArchive(cfg *config.Config, logger vlog.Logger) (consumer.Consumer, func(), error) {
	var consumers []consumer.Consumer
	var closers []func()

	if cfg.Consumer.Gob.Enabled {
		consumers = append(consumers, consumer.NewGobConsumer(cfg.Consumer.Gob.RootPath, logger.With(vlog.Fields{"component": "gob-consumer"})))
	}
	if cfg.Consumer.ClickHouse.Enabled {
		cc, err := consumer.NewClickHouseConsumer(consumer.ClickHouseOptions{
			Host:     cfg.Consumer.ClickHouse.Host,
			Port:     cfg.Consumer.ClickHouse.Port,
			Database: cfg.Consumer.ClickHouse.Database,
			Username: cfg.Consumer.ClickHouse.Username,
			Password: cfg.Consumer.ClickHouse.Password,
			Table:    cfg.Consumer.ClickHouse.Table,
		}, logger.With(vlog.Fields{"component": "clickhouse-consumer"}))
		if err != nil {
			return nil, func() {}, err
		}
		consumers = append(consumers, cc)
		closers = append(closers, func() {
			if err := cc.Close(); err != nil {
				logger.Errorf("failed to close clickhouse connection: %v", err)
			}
		})
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if len(consumers) == 0 {
		return nil, closeAll, nil
	}
	return consumer.NewMultiConsumer(consumers...), closeAll, nil
}
