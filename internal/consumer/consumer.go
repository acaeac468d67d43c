// Package consumer provides the reference downstream collaborators a
// vast-capture run ships Segment and Statistics messages to: an at-rest
// gob archive, a NATS publisher, and an optional ClickHouse archive.
// spec.md §6 specifies only the message contract toward the consumer;
// everything in this package is the reference implementation of "the
// consumer" that a real deployment would otherwise supply externally.
package consumer

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/nats-io/nats.go"

	vast "github.com/awesome-security/vast/internal/vast"
	"github.com/awesome-security/vast/internal/vlog"
)

// Consumer is the downstream collaborator the Segmentizer ships to,
// mirroring internal/segmentizer.Consumer so any implementation here is
// usable directly as a Segmentizer's consumer without an adapter.
type Consumer interface {
	Segment(ctx context.Context, seg vast.Segment) error
	Statistics(ctx context.Context, eventsPerSecond float64) error
}

// summary mirrors the teacher's exact.SummaryData shape, adapted to a
// segment's contents instead of a flow-aggregation snapshot.
type summary struct {
	SegmentID  string `json:"segment_id"`
	Chunks     int    `json:"chunks"`
	EventCount int    `json:"event_count"`
	ByteSize   int    `json:"byte_size"`
	Timestamp  string `json:"timestamp"`
}

// GobConsumer archives every shipped segment as a gob-encoded file under
// a timestamped directory, plus a JSON summary, following the teacher's
// exact.GobWriter layout (<root>/<timestamp>/...), with one data file and
// one summary file per segment.
type GobConsumer struct {
	rootPath string
	log      vlog.Logger
}

// NewGobConsumer builds a GobConsumer rooted at rootPath.
func NewGobConsumer(rootPath string, log vlog.Logger) *GobConsumer {
	if log == nil {
		log = vlog.Noop()
	}
	return &GobConsumer{rootPath: rootPath, log: log}
}

// Segment gob-encodes seg to <root>/<timestamp>/segment_<uuid>.gob plus a
// sibling segment_<uuid>.summary.json.
func (g *GobConsumer) Segment(ctx context.Context, seg vast.Segment) error {
	dir := filepath.Join(g.rootPath, time.Now().UTC().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create segment directory: %w", err)
	}

	dataPath := filepath.Join(dir, fmt.Sprintf("segment_%s.gob", seg.ID))
	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("failed to create segment file '%s': %w", dataPath, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(seg); err != nil {
		return fmt.Errorf("failed to encode segment to gob for file '%s': %w", dataPath, err)
	}

	summaryPath := filepath.Join(dir, fmt.Sprintf("segment_%s.summary.json", seg.ID))
	summaryFile, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	enc := json.NewEncoder(summaryFile)
	enc.SetIndent("", "  ")
	s := summary{
		SegmentID:  seg.ID.String(),
		Chunks:     len(seg.Chunks),
		EventCount: seg.EventCount(),
		ByteSize:   seg.ByteSize(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}

	g.log.Infof("archived segment %s (%d events, %d bytes) to %s", seg.ID, s.EventCount, s.ByteSize, dataPath)
	return nil
}

// Statistics appends a rate sample to a running statistics.log file under
// the root path.
func (g *GobConsumer) Statistics(ctx context.Context, eventsPerSecond float64) error {
	path := filepath.Join(g.rootPath, "statistics.log")
	if err := os.MkdirAll(g.rootPath, 0o755); err != nil {
		return fmt.Errorf("failed to create root path: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open statistics log: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s %.2f\n", time.Now().UTC().Format(time.RFC3339), eventsPerSecond)
	return err
}

// NATSConsumer publishes shipped segments and statistics to a NATS
// subject, following the teacher's internal/probe/publisher.go
// connect/publish/drain lifecycle. Segments ship gob-encoded (see
// DESIGN.md for why protobuf, the teacher's own wire format, isn't
// used) on subject; statistics ship as small JSON payloads on
// subject+".stats".
type NATSConsumer struct {
	nc      *nats.Conn
	subject string
	log     vlog.Logger
}

// NewNATSConsumer connects to url and builds a NATSConsumer publishing to
// subject.
func NewNATSConsumer(url, subject string, log vlog.Logger) (*NATSConsumer, error) {
	if log == nil {
		log = vlog.Noop()
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	log.Infof("connected to NATS server at %s", url)
	return &NATSConsumer{nc: nc, subject: subject, log: log}, nil
}

// Segment gob-encodes seg and publishes it to the configured subject.
func (n *NATSConsumer) Segment(ctx context.Context, seg vast.Segment) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(seg); err != nil {
		return fmt.Errorf("failed to gob-encode segment %s: %w", seg.ID, err)
	}
	if err := n.nc.Publish(n.subject, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to publish segment %s: %w", seg.ID, err)
	}
	return nil
}

// Statistics publishes a {events_per_second} JSON payload to
// subject+".stats".
func (n *NATSConsumer) Statistics(ctx context.Context, eventsPerSecond float64) error {
	payload, err := json.Marshal(struct {
		EventsPerSecond float64 `json:"events_per_second"`
	}{eventsPerSecond})
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}
	if err := n.nc.Publish(n.subject+".stats", payload); err != nil {
		return fmt.Errorf("failed to publish statistics: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection, following the teacher's
// Publisher.Close.
func (n *NATSConsumer) Close() {
	if n.nc != nil {
		n.nc.Drain()
		n.log.Infof("NATS connection drained and closed")
	}
}

const createSegmentsTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    Timestamp   DateTime,
    SegmentID   String,
    ChunkIndex  UInt32,
    EventIndex  UInt32,
    SrcIP       String,
    DstIP       String,
    SrcPort     UInt16,
    DstPort     UInt16,
    PayloadSize UInt32,
    EventTime   DateTime64(9)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (SegmentID, ChunkIndex, EventIndex);
`

// ClickHouseConsumer archives every shipped segment's events as rows in
// a ClickHouse table, following the teacher's exact.ClickHouseWriter
// connect/PrepareBatch/Send pattern.
type ClickHouseConsumer struct {
	conn  driver.Conn
	table string
	log   vlog.Logger
}

// ClickHouseOptions bundles connection parameters for NewClickHouseConsumer.
type ClickHouseOptions struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Table    string
}

// NewClickHouseConsumer connects to ClickHouse and ensures the archive
// table exists.
func NewClickHouseConsumer(opts ClickHouseOptions, log vlog.Logger) (*ClickHouseConsumer, error) {
	if log == nil {
		log = vlog.Noop()
	}
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), fmt.Sprintf(createSegmentsTableStatement, opts.Table)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", opts.Table, err)
	}
	log.Infof("connected to ClickHouse and ensured table %s exists", opts.Table)
	return &ClickHouseConsumer{conn: conn, table: opts.Table, log: log}, nil
}

// Segment appends every event across every chunk of seg as one row.
func (c *ClickHouseConsumer) Segment(ctx context.Context, seg vast.Segment) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", c.table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now().UTC()
	rows := 0
	for ci, chunk := range seg.Chunks {
		for ei, e := range chunk.Events {
			err := batch.Append(
				now,
				seg.ID.String(),
				uint32(ci),
				uint32(ei),
				e.Meta.Src.String(),
				e.Meta.Dst.String(),
				e.Meta.SPort.Number,
				e.Meta.DPort.Number,
				uint32(len(e.Payload)),
				time.Unix(0, e.Timestamp),
			)
			if err != nil {
				return fmt.Errorf("failed to append event to batch: %w", err)
			}
			rows++
		}
	}

	if rows == 0 {
		return nil
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	c.log.Infof("wrote %d events from segment %s to ClickHouse", rows, seg.ID)
	return nil
}

// Statistics is a no-op: the archive table is event-shaped, not
// rate-shaped, so rate samples are left to the other consumers' logs.
func (c *ClickHouseConsumer) Statistics(ctx context.Context, eventsPerSecond float64) error {
	return nil
}

// Close closes the underlying ClickHouse connection.
func (c *ClickHouseConsumer) Close() error {
	return c.conn.Close()
}

// MultiConsumer fans out every call to all of its consumers, returning
// the first error encountered (after attempting every consumer) so one
// slow or failing downstream doesn't silently mask the others.
type MultiConsumer struct {
	consumers []Consumer
}

// NewMultiConsumer builds a MultiConsumer fanning out to consumers.
func NewMultiConsumer(consumers ...Consumer) *MultiConsumer {
	return &MultiConsumer{consumers: consumers}
}

func (m *MultiConsumer) Segment(ctx context.Context, seg vast.Segment) error {
	var firstErr error
	for _, c := range m.consumers {
		if err := c.Segment(ctx, seg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiConsumer) Statistics(ctx context.Context, eventsPerSecond float64) error {
	var firstErr error
	for _, c := range m.consumers {
		if err := c.Statistics(ctx, eventsPerSecond); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
