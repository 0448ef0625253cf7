package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/quake-map-service/internal/config"
	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/observability"
)

// Writer publishes loaded earthquakes and playback frames to Kafka.
// It implements pipeline.QuakePublisher and playback.FrameSink.
type Writer struct {
	writer     messageWriter
	quakeTopic string
	frameTopic string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter creates a Kafka producer for the configured quake and frame topics.
// The topic is set per message.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{
		writer:     w,
		quakeTopic: cfg.KafkaQuakeTopic,
		frameTopic: cfg.KafkaFrameTopic,
		logger:     logger,
		metrics:    metrics,
	}
}

// PublishQuakes writes every quake to the quake topic in a single
// WriteMessages call, keyed by quake ID.
func (w *Writer) PublishQuakes(ctx context.Context, quakes []domain.Quake) error {
	if len(quakes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(quakes))
	for i := range quakes {
		msg, err := quakeMessage(w.quakeTopic, quakes[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		w.metrics.PublishErrors.WithLabelValues("quakes").Inc()
		return fmt.Errorf("publish quakes: %w", err)
	}
	w.metrics.QuakesPublished.Add(float64(len(msgs)))
	w.logger.Debug("quakes published", "count", len(msgs), "topic", w.quakeTopic)
	return nil
}

// PublishFrame writes a frame summary to the frame topic.
func (w *Writer) PublishFrame(ctx context.Context, f domain.Frame) error {
	msg, err := frameMessage(w.frameTopic, f)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		w.metrics.PublishErrors.WithLabelValues("frame").Inc()
		return fmt.Errorf("publish frame: %w", err)
	}
	w.metrics.FramesPublished.Inc()
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// quakeMessage marshals a Quake into a Kafka message.
func quakeMessage(topic string, q domain.Quake) (kafkago.Message, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize quake: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(q.ID),
		Value: data,
		Time:  q.Time,
		Headers: []kafkago.Header{
			{Key: "magnitude", Value: []byte(strconv.FormatFloat(q.Magnitude, 'f', -1, 64))},
			{Key: "event_time", Value: []byte(q.Time.UTC().Format(time.RFC3339))},
		},
	}, nil
}

// FrameSummary is the frame payload written to Kafka. Events are referenced
// by ID to keep cumulative frames small.
type FrameSummary struct {
	Index       int         `json:"index"`
	Date        time.Time   `json:"date"`
	Mode        domain.Mode `json:"mode"`
	Count       int         `json:"count"`
	Total       int         `json:"total"`
	QuakeIDs    []string    `json:"quake_ids"`
	GeneratedAt time.Time   `json:"generated_at"`
}

func frameMessage(topic string, f domain.Frame) (kafkago.Message, error) {
	ids := make([]string, len(f.Quakes))
	for i := range f.Quakes {
		ids[i] = f.Quakes[i].ID
	}
	data, err := json.Marshal(FrameSummary{
		Index:       f.Index,
		Date:        f.Date,
		Mode:        f.Mode,
		Count:       len(f.Quakes),
		Total:       f.Total,
		QuakeIDs:    ids,
		GeneratedAt: f.GeneratedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize frame: %w", err)
	}
	date := f.Date.Format(time.DateOnly)
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(string(f.Mode) + ":" + date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "mode", Value: []byte(f.Mode)},
			{Key: "date", Value: []byte(date)},
		},
	}, nil
}
