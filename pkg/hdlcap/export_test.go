//nolint
package hdlcap

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

var (
	ListenHDL          = listenHDL
	ConsumeKafka       = consumeKafka
	DecodeScanMessage  = decodeScanMessage
	NewEmitter         = newEmitter
	NewBundler         = newBundler
	GlobalHeader       = globalHeader
	MakeS3Key          = makeS3Key
	NewCaptureWriter   = newCaptureWriter
	RecordHeaderLength = recordHeaderLength
	HeaderBlockLength  = headerBlockLength
)

type KafkaReader kafkaReader
type Queue queue

// FakeEmitter records emitted data in memory.
type FakeEmitter struct {
	Buf bytes.Buffer

	SetupErr    error
	EmitErr     error
	TeardownErr error

	SetupCount    int
	EmitCount     int
	TeardownCount int
}

func (x *FakeEmitter) setup() error {
	x.SetupCount++
	return x.SetupErr
}

func (x *FakeEmitter) emit(data []byte) error {
	x.EmitCount++
	if x.EmitErr != nil {
		return x.EmitErr
	}
	x.Buf.Write(data)
	return nil
}

func (x *FakeEmitter) teardown() error {
	x.TeardownCount++
	return x.TeardownErr
}

func EmitterSetup(e recordEmitter) error          { return e.setup() }
func EmitterEmit(e recordEmitter, d []byte) error { return e.emit(d) }
func EmitterTeardown(e recordEmitter) error       { return e.teardown() }

func BundlerAdd(b *bundler, pkt *RawPayload) *PacketBatch { return b.add(pkt) }
func BundlerFlush(b *bundler) *PacketBatch                { return b.flush() }

func NewQueueChan(size int) chan *queue { return make(chan *queue, size) }

func OpenSource(ctx context.Context, src *SourceArguments, size int) (chan *queue, error) {
	return src.open(ctx, size)
}

func SetS3Uploader(f func(string) s3manageriface.UploaderAPI) func() {
	orig := newS3Uploader
	newS3Uploader = f
	return func() { newS3Uploader = orig }
}

func SetKafkaReader(f func(KafkaArguments) KafkaReader) func() {
	orig := newKafkaReader
	newKafkaReader = func(args KafkaArguments) kafkaReader { return f(args) }
	return func() { newKafkaReader = orig }
}
