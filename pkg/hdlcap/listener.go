package hdlcap

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

type queue struct {
	Batch *PacketBatch
	Err   error
}

const (
	// DefaultReceiverQueueSize is channel capacity between a source and the processor.
	DefaultReceiverQueueSize = 1024

	udpReceiveBufferSize = 1500
)

// UDPArguments configures UDP source of HDL data packets.
type UDPArguments struct {
	Addr             string
	DatagramSize     int
	MaxBundlePackets int
}

func listenHDL(ctx context.Context, args UDPArguments, queueSize int) (chan *queue, error) {
	sock, err := net.ListenPacket("udp", args.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "Fail to create UDP socket")
	}

	ch := make(chan *queue, queueSize)
	go receiveHDL(ctx, sock, newBundler(args.DatagramSize, args.MaxBundlePackets), ch)

	return ch, nil
}

func receiveHDL(ctx context.Context, sock net.PacketConn, b *bundler, ch chan *queue) {
	defer close(ch)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		sock.Close()
	}()

	buf := make([]byte, udpReceiveBufferSize)

	for {
		n, _, err := sock.ReadFrom(buf)
		if err != nil {
			if ctx.Err() == nil {
				ch <- &queue{Err: errors.Wrap(err, "Fail to read UDP data")}
			}
			return
		}

		if n != b.datagramSize {
			Logger.WithField("length", n).Warnf("Data packet is not %d bytes", b.datagramSize)
			continue
		}

		pkt := newRawPayload(buf, n, time.Now())
		if batch := b.add(pkt); batch != nil {
			select {
			case ch <- &queue{Batch: batch}:
			case <-ctx.Done():
				return
			}
		}
	}
}
