package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/meenava/internal/version"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	brokersEnv         = "MEENAVA_KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := s.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (s saramaSource) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}

// newReplayDependencies подменяется в тестах.
var newReplayDependencies = func(cfg config) (offsetClient, partitionSource, *kafka.Producer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = version.ClientID("dlq-reprocess")
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaSource{consumer: consumer}

	if !cfg.execute {
		return client, source, nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  cfg.brokers,
		ClientID: version.ClientID("dlq-reprocess"),
		Timeout:  5 * time.Second,
	})
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, source, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.WithField("component", "dlq-reprocess")); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "dlq replay failed: %v\n", err)
		os.Exit(1)
	}
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: "+brokersEnv+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicCartEvents, "topic to replay cart events into")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replayed events; dry-run otherwise")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" && getenv != nil {
		brokersRaw = getenv(brokersEnv)
	}
	cfg.brokers = splitBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", brokersEnv)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.sourceTopic == cfg.targetTopic:
		return config{}, fmt.Errorf("source-topic and target-topic must differ")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config, logger *log.Entry) error {
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	client, source, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = producer.Close()
		if source != nil {
			_ = source.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	r := &replayer{cfg: cfg, client: client, source: source, logger: logger}
	if producer != nil {
		r.publisher = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	}

	stats, err := r.Run(ctx)
	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
	}).Info("dlq replay finished")
	return err
}
