package hdlcap

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Source kinds
const (
	SourceUDP   = "udp"
	SourceKafka = "kafka"
)

// SourceArguments is parsed subscription identifier.
type SourceArguments struct {
	Kind  string
	UDP   UDPArguments
	Kafka KafkaArguments
}

// ParseSource parses subscription identifier such as "udp://:2368" or
// "kafka://broker1:9092,broker2:9092/velodyne_packets".
func ParseSource(identifier string) (*SourceArguments, error) {
	if identifier == "" {
		return nil, configError("subscription identifier is required")
	}

	scheme, rest, found := strings.Cut(identifier, "://")
	if !found {
		return nil, configError("Invalid subscription identifier %q", identifier)
	}

	switch scheme {
	case SourceUDP:
		u, err := url.Parse(identifier)
		if err != nil {
			return nil, configError("Invalid subscription identifier %q: %v", identifier, err)
		}
		addr := u.Host
		if u.Port() == "" {
			addr = net.JoinHostPort(u.Hostname(), strconv.Itoa(DefaultHDLPort))
		}
		return &SourceArguments{Kind: SourceUDP, UDP: UDPArguments{Addr: addr}}, nil

	case SourceKafka:
		// Broker list is comma separated host:port and not a valid URL host.
		brokers, topic, _ := strings.Cut(rest, "/")
		topic = strings.Trim(topic, "/")
		if brokers == "" || topic == "" {
			return nil, configError("kafka source requires brokers and topic: %q", identifier)
		}
		return &SourceArguments{
			Kind: SourceKafka,
			Kafka: KafkaArguments{
				Brokers: strings.Split(brokers, ","),
				Topic:   topic,
			},
		}, nil

	default:
		return nil, configError("The source is not supported: %q", scheme)
	}
}

func (x *SourceArguments) open(ctx context.Context, queueSize int) (chan *queue, error) {
	switch x.Kind {
	case SourceUDP:
		return listenHDL(ctx, x.UDP, queueSize)
	case SourceKafka:
		return subscribeKafka(ctx, x.Kafka, queueSize)
	default:
		return nil, configError("The source is not supported: %q", x.Kind)
	}
}
