// Command vast-capture runs the ingestion core end to end: Packet
// Reader -> Dissector -> Flow Table -> Pacer -> Segmentizer -> Consumer,
// following the teacher's cmd/pcap-analyzer/main.go and cmd/ns-probe
// main.go's flag-parsed, signal-driven shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/awesome-security/vast/internal/config"
	"github.com/awesome-security/vast/internal/consumer"
	"github.com/awesome-security/vast/internal/dissect"
	"github.com/awesome-security/vast/internal/flowtable"
	"github.com/awesome-security/vast/internal/pacer"
	"github.com/awesome-security/vast/internal/segmentizer"
	"github.com/awesome-security/vast/internal/statusapi"
	vast "github.com/awesome-security/vast/internal/vast"
	"github.com/awesome-security/vast/internal/vlog"
	"github.com/awesome-security/vast/pkg/pcap"
)

func main() {
	configPath := flag.String("config", "configs/vast-capture.yaml", "path to the YAML configuration file")
	input := flag.String("input", "", "override source.input: interface name, file path, or '-' for stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *input != "" {
		cfg.Source.Input = *input
	}

	logger := vlog.NewWithLevel(cfg.Log.Level)

	cons, closeConsumers, err := buildConsumer(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build consumer: %v", err)
	}
	defer closeConsumers()

	flows := flowtable.New(flowtable.Config{
		Cutoff:         cfg.Source.Cutoff,
		MaxFlows:       cfg.Source.MaxFlows,
		MaxAge:         cfg.Source.MaxAge,
		ExpireInterval: cfg.Source.ExpireInterval,
	}, logger.With(vlog.Fields{"component": "flowtable"}))

	dissector := dissect.New(flows, logger.With(vlog.Fields{"component": "dissect"}))
	pc := pacer.New(cfg.Source.PseudoRealtime, logger.With(vlog.Fields{"component": "pacer"}))
	seg := segmentizer.New(cfg.Source.MaxEventsPerChunk, cfg.Source.MaxSegmentSize, cons, logger.With(vlog.Fields{"component": "segmentizer"}))

	reader := pcap.NewReader(logger.With(vlog.Fields{"component": "pcap"}))
	liveDisabledPacing, err := reader.Open(cfg.Source.Input, cfg.Source.PseudoRealtime)
	if err != nil {
		log.Fatalf("failed to open source %s: %v", cfg.Source.Input, err)
	}
	defer reader.Close()
	if liveDisabledPacing {
		pc = pacer.New(0, logger.With(vlog.Fields{"component": "pacer"}))
		logger.Warnf("pseudo-realtime pacing disabled for live capture")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("shutdown signal received")
		cancel()
	}()

	var processed uint64
	start := time.Now()

	if cfg.StatusAPI.Enabled {
		provider := &liveStats{flows: flows, processed: &processed, start: start}
		statusSrv := statusapi.New(cfg.StatusAPI.Addr, provider, logger.With(vlog.Fields{"component": "statusapi"}))
		go func() {
			if err := statusSrv.Run(ctx); err != nil {
				logger.Errorf("status API exited: %v", err)
			}
		}()
	}

	if err := run(ctx, reader, dissector, pc, seg, &processed); err != nil {
		log.Fatalf("capture loop failed: %v", err)
	}

	if err := seg.Flush(context.Background()); err != nil {
		logger.Errorf("final flush failed: %v", err)
	}
	logger.Infof("processed %d events in %s", atomic.LoadUint64(&processed), time.Since(start))
}

func run(ctx context.Context, reader *pcap.Reader, dissector *dissect.Dissector, pc *pacer.Pacer, seg *segmentizer.Segmentizer, processed *uint64) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, status, err := reader.Next()
		switch status {
		case pcap.StatusEndOfStream:
			return nil
		case pcap.StatusError:
			return err
		case pcap.StatusTimedOut:
			continue
		}

		outcome := dissector.Dissect(frame.Bytes, frame.WireLen, frame.TsSec, frame.TsSub)
		if outcome.Skipped || outcome.Dropped {
			continue
		}
		if outcome.Err != nil {
			continue
		}

		pc.Wait(ctx, outcome.Event.Timestamp)
		if err := seg.Process(ctx, *outcome.Event); err != nil {
			return fmt.Errorf("segmentizer failed: %w", err)
		}
		atomic.AddUint64(processed, 1)
	}
}

// buildConsumer wires every enabled downstream collaborator from
// cfg.Consumer into a single fan-out Consumer. The returned
// consumer.Consumer satisfies internal/segmentizer.Consumer directly, so
// it is passed to segmentizer.New without an adapter.
func buildConsumer(cfg *config.Config, logger vlog.Logger) (consumer.Consumer, func(), error) {
	var consumers []consumer.Consumer
	var closers []func()

	if cfg.Consumer.Gob.Enabled {
		consumers = append(consumers, consumer.NewGobConsumer(cfg.Consumer.Gob.RootPath, logger.With(vlog.Fields{"component": "gob-consumer"})))
	}
	if cfg.Consumer.NATS.Enabled {
		nc, err := consumer.NewNATSConsumer(cfg.Consumer.NATS.URL, cfg.Consumer.NATS.Subject, logger.With(vlog.Fields{"component": "nats-consumer"}))
		if err != nil {
			return nil, func() {}, err
		}
		consumers = append(consumers, nc)
		closers = append(closers, nc.Close)
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
		logger.Warnf("no consumer enabled in configuration; shipped segments are discarded")
		return discardConsumer{}, closeAll, nil
	}
	return consumer.NewMultiConsumer(consumers...), closeAll, nil
}

// discardConsumer is used when no consumer is enabled in configuration,
// so a capture run can still exercise the full pipeline (useful for
// smoke-testing a trace) without silently requiring a downstream.
type discardConsumer struct{}

func (discardConsumer) Segment(ctx context.Context, seg vast.Segment) error { return nil }

func (discardConsumer) Statistics(ctx context.Context, eventsPerSecond float64) error { return nil }

type liveStats struct {
	flows     *flowtable.Table
	processed *uint64
	start     time.Time
}

func (s *liveStats) Stats() statusapi.Stats {
	return statusapi.Stats{
		FlowCount:       s.flows.Len(),
		EventsProcessed: atomic.LoadUint64(s.processed),
		Uptime:          time.Since(s.start).String(),
	}
}
