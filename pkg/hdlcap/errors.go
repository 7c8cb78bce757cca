package hdlcap

import "github.com/pkg/errors"

var (
	// ErrConfiguration means invalid settings. Nothing is started.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrIO is kind of sink failures: open, write, flush and close.
	ErrIO = errors.New("capture file I/O failure")

	// ErrMalformedPayload is returned for a payload that does not match
	// DatagramSize under the strict length policy.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrWriterClosed is returned by CaptureWriter after Close.
	ErrWriterClosed = errors.New("writer closed")
)

func configError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

type ioError struct {
	err error
}

func (x *ioError) Error() string        { return x.err.Error() }
func (x *ioError) Unwrap() error        { return x.err }
func (x *ioError) Is(target error) bool { return target == ErrIO }

// wrapIO keeps original error in the chain and marks it as ErrIO.
func wrapIO(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &ioError{err: errors.Wrap(err, msg)}
}
