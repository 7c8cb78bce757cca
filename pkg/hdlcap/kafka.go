package hdlcap

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// DefaultKafkaGroupID is consumer group of kafka source.
const DefaultKafkaGroupID = "hdlcap"

// KafkaArguments configures topic subscription.
type KafkaArguments struct {
	Brokers []string
	Topic   string
	GroupID string
}

// scanMessage is wire format of a message on the topic, same shape as VelodyneScan.
type scanMessage struct {
	Packets []scanPacket `json:"packets"`
}

type scanPacket struct {
	Stamp struct {
		Secs  uint32 `json:"secs"`
		Nsecs uint32 `json:"nsecs"`
	} `json:"stamp"`
	Data []byte `json:"data"`
}

func decodeScanMessage(raw []byte) (*PacketBatch, error) {
	var msg scanMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Wrap(err, "Fail to unmarshal scan message")
	}

	batch := &PacketBatch{Packets: make([]*RawPayload, len(msg.Packets))}
	for i, p := range msg.Packets {
		batch.Packets[i] = &RawPayload{
			Timestamp: Timestamp{Sec: p.Stamp.Secs, Nsec: p.Stamp.Nsecs},
			Data:      p.Data,
		}
	}
	return batch, nil
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var newKafkaReader = func(args KafkaArguments) kafkaReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        args.Brokers,
		Topic:          args.Topic,
		GroupID:        args.GroupID,
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: time.Second,
		MaxWait:        time.Second,
	})
}

func subscribeKafka(ctx context.Context, args KafkaArguments, queueSize int) (chan *queue, error) {
	if len(args.Brokers) == 0 {
		return nil, configError("brokers is required for kafka source")
	}
	if args.Topic == "" {
		return nil, configError("topic is required for kafka source")
	}
	if args.GroupID == "" {
		args.GroupID = DefaultKafkaGroupID
	}

	Logger.WithFields(logrus.Fields{
		"brokers": args.Brokers,
		"topic":   args.Topic,
		"groupID": args.GroupID,
	}).Info("Subscribing kafka topic")

	ch := make(chan *queue, queueSize)
	go consumeKafka(ctx, newKafkaReader(args), ch)

	return ch, nil
}

func consumeKafka(ctx context.Context, reader kafkaReader, ch chan *queue) {
	defer close(ch)
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				ch <- &queue{Err: errors.Wrap(err, "Fail to fetch kafka message")}
			}
			return
		}

		batch, err := decodeScanMessage(msg.Value)
		if err != nil {
			Logger.WithError(err).WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warn("Skip malformed scan message")
		} else {
			select {
			case ch <- &queue{Batch: batch}:
			case <-ctx.Done():
				return
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() == nil {
				Logger.WithError(err).Warn("Fail to commit kafka message")
			}
		}
	}
}
