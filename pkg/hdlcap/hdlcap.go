package hdlcap

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Logger is logging interface of the pacakge. Basically It's disabled by default.
// But it can be enabled by changing log level by SetLevel for debugging.
var Logger = logrus.New()

func init() {
	Logger.SetLevel(logrus.FatalLevel)
}

// HDLCap is one of main components of the package
type HDLCap struct {
	Source    SourceArguments
	QueueSize int
}

// New is constructor of HDLCap
func New(src SourceArguments) *HDLCap {
	capture := HDLCap{
		Source:    src,
		QueueSize: DefaultReceiverQueueSize,
	}
	return &capture
}

// Start subscribes the source and forwards received batches to processor one by one
// until ctx is cancelled. A batch already received is completed before Shutdown.
func (x *HDLCap) Start(ctx context.Context, proc Processor) error {
	// Stops the source when Start returns for any reason.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := x.Source.open(ctx, x.QueueSize)
	if err != nil {
		return x.abort(proc, errors.Wrap(err, "Fail to open source"))
	}

	for {
		if ctx.Err() != nil {
			Logger.Info("Shutting down")
			return proc.Shutdown()
		}

		select {
		case <-ctx.Done():
			continue

		case q, ok := <-ch:
			if !ok {
				Logger.Info("Source closed")
				return proc.Shutdown()
			}
			if q.Err != nil {
				return x.abort(proc, errors.Wrap(q.Err, "Fail to receive data"))
			}
			if err := proc.Put(q.Batch); err != nil {
				return x.abort(proc, errors.Wrap(err, "Fail to handle batch"))
			}
		}
	}
}

func (x *HDLCap) abort(proc Processor, err error) error {
	if shutdownErr := proc.Shutdown(); shutdownErr != nil {
		Logger.WithError(shutdownErr).Warn("Fail to shutdown processor")
	}
	return err
}
