package hdlcap

import (
	"bytes"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	globalHeaderLength = 24
	captureSnapLen     = 0xffff
)

// ProgressObserver receives running total of written records once per batch.
type ProgressObserver interface {
	Progress(total uint64)
}

type logObserver struct{}

func (x *logObserver) Progress(total uint64) {
	Logger.WithField("total", total).Infof("Wrote %d packets.", total)
}

// CaptureWriter owns the capture file: global header, record counter and emitter.
// It is not concurrency safe; batches must be processed one by one.
type CaptureWriter struct {
	emitter  recordEmitter
	encoder  *RecordEncoder
	observer ProgressObserver

	total  uint64
	buf    []byte
	err    error
	closed bool
}

func globalHeader() ([]byte, error) {
	buf := new(bytes.Buffer)
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(captureSnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, errors.Wrap(err, "Fail to build header of pcap")
	}
	return buf.Bytes(), nil
}

// newCaptureWriter opens the emitter and writes global header of pcap exactly once.
func newCaptureWriter(emitter recordEmitter, encoder *RecordEncoder, observer ProgressObserver) (*CaptureWriter, error) {
	if observer == nil {
		observer = &logObserver{}
	}

	hdr, err := globalHeader()
	if err != nil {
		return nil, err
	}

	if err := emitter.setup(); err != nil {
		return nil, err
	}
	if err := emitter.emit(hdr); err != nil {
		if tdErr := emitter.teardown(); tdErr != nil {
			Logger.WithError(tdErr).Warn("Fail to teardown emitter after header write error")
		}
		return nil, err
	}

	w := &CaptureWriter{
		emitter:  emitter,
		encoder:  encoder,
		observer: observer,
	}
	return w, nil
}

// Total returns number of records written so far.
func (x *CaptureWriter) Total() uint64 { return x.total }

// ProcessBatch encodes payloads of the batch in arrival order and appends them
// to the capture file. Returns running total of records.
func (x *CaptureWriter) ProcessBatch(batch *PacketBatch) (uint64, error) {
	if x.closed {
		return x.total, ErrWriterClosed
	}
	if x.err != nil {
		return x.total, x.err
	}
	if batch == nil || len(batch.Packets) == 0 {
		return x.total, nil
	}

	x.buf = x.buf[:0]
	for idx, pkt := range batch.Packets {
		var err error
		if x.buf, err = x.encoder.AppendRecord(x.buf, pkt); err != nil {
			x.err = errors.Wrapf(err, "Fail to encode packet #%d of batch", idx)
			return x.total, x.err
		}
	}

	if err := x.emitter.emit(x.buf); err != nil {
		x.err = err
		return x.total, err
	}

	x.total += uint64(len(batch.Packets))
	Logger.WithFields(logrus.Fields{
		"batchSize": len(batch.Packets),
		"bytes":     len(x.buf),
	}).Trace("Wrote a batch")
	x.observer.Progress(x.total)

	return x.total, nil
}

// Close flushes and closes the capture file. Second call returns ErrWriterClosed.
func (x *CaptureWriter) Close() error {
	if x.closed {
		return ErrWriterClosed
	}
	x.closed = true

	if err := x.emitter.teardown(); err != nil {
		return err
	}

	Logger.WithField("total", x.total).Debug("Closed capture file")
	return nil
}
