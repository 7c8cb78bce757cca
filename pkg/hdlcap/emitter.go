package hdlcap

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"

	"github.com/google/uuid"
)

// recordEmitter is output sink of a capture file. setup creates (or truncates)
// the destination, emit appends bytes in order and teardown flushes and closes it.
type recordEmitter interface {
	setup() error
	emit([]byte) error
	teardown() error
}

type emitterConstructor func(EmitterArguments) (recordEmitter, error)

// EmitterArguments is for construction of emitter
type EmitterArguments struct {
	Name string

	// For fsEmitter
	FsFileName string
	FsDirPath  string

	// For aws service
	AwsRegion string

	// For s3Emitter
	AwsS3Bucket     string
	AwsS3Prefix     string
	AwsS3AddTimeKey bool
}

const (
	captureFileExtension = "pcap"
	stdoutFileName       = "-"
	fsWriteBufferSize    = 64 * 1024
)

func newEmitter(args EmitterArguments) (recordEmitter, error) {
	emitterMap := map[string]emitterConstructor{
		"fs": newFsEmitter,
		"s3": newS3Emitter,
	}

	constructor, ok := emitterMap[args.Name]
	if !ok {
		return nil, configError("The emitter is not supported: %q", args.Name)
	}

	return constructor(args)
}

type fsEmitter struct {
	Argument EmitterArguments
	DirPath  string
	FileName string
	fd       io.WriteCloser
	writer   *bufio.Writer
}

func newFsEmitter(args EmitterArguments) (recordEmitter, error) {
	if args.FsFileName == "" {
		return nil, configError("FsFileName is not set for fs emitter")
	}

	emitter := fsEmitter{
		Argument: args,
		DirPath:  ".",
		FileName: args.FsFileName,
	}

	if args.FsDirPath != "" {
		emitter.DirPath = args.FsDirPath
	}

	Logger.WithFields(logrus.Fields{
		"dirpath":  emitter.DirPath,
		"fileName": emitter.FileName,
	}).Info("Configured FileSystem Emitter")

	return &emitter, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (x *fsEmitter) path() string {
	if filepath.IsAbs(x.FileName) {
		return x.FileName
	}
	return filepath.Join(x.DirPath, x.FileName)
}

func (x *fsEmitter) setup() error {
	if x.FileName == stdoutFileName {
		x.fd = nopCloser{os.Stdout}
	} else {
		path := x.path()
		Logger.WithField("filepath", path).Debug("Opening output file")
		fd, err := os.Create(path)
		if err != nil {
			return wrapIO(err, "Fail to create a capture file for emitter")
		}
		x.fd = fd
	}

	x.writer = bufio.NewWriterSize(x.fd, fsWriteBufferSize)
	return nil
}

func (x *fsEmitter) emit(data []byte) error {
	if _, err := x.writer.Write(data); err != nil {
		return wrapIO(err, "Fail to write capture data")
	}
	return nil
}

func (x *fsEmitter) teardown() error {
	if x.fd == nil {
		return nil
	}
	defer func() { x.fd = nil }()

	if err := x.writer.Flush(); err != nil {
		x.fd.Close()
		return wrapIO(err, "Fail to flush capture file")
	}
	if err := x.fd.Close(); err != nil {
		return wrapIO(err, "Fail to close capture file")
	}
	return nil
}

var newS3Uploader = func(awsRegion string) s3manageriface.UploaderAPI {
	ssn := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(awsRegion),
	}))

	return s3manager.NewUploader(ssn)
}

type uploadResult struct {
	resp *s3manager.UploadOutput
	err  error
}

// s3Emitter streams a capture file to one S3 object while capturing.
type s3Emitter struct {
	Argument EmitterArguments
	s3Key    string
	pipe     *io.PipeWriter
	resultCh chan *uploadResult
}

func newS3Emitter(args EmitterArguments) (recordEmitter, error) {
	if args.AwsRegion == "" {
		return nil, configError("AwsRegion is not set for S3 emitter")
	}
	if args.AwsS3Bucket == "" {
		return nil, configError("AwsS3Bucket is not set for S3 emitter")
	}

	emitter := s3Emitter{
		Argument: args,
	}

	Logger.WithFields(logrus.Fields{
		"region":     emitter.Argument.AwsRegion,
		"S3Bucket":   emitter.Argument.AwsS3Bucket,
		"S3Prefix":   emitter.Argument.AwsS3Prefix,
		"addTimeKey": emitter.Argument.AwsS3AddTimeKey,
	}).Info("Configured AWS S3 Emitter")

	return &emitter, nil
}

func makeS3Key(prefix string, addTimeKey bool, now time.Time) string {
	s3Key := prefix
	if addTimeKey {
		s3Key += now.Format("2006/01/02/15/")
	}
	s3Key += now.Format("20060102_150405_") +
		strings.Replace(uuid.New().String(), "-", "", -1) + "." +
		captureFileExtension
	return s3Key
}

func (x *s3Emitter) setup() error {
	x.s3Key = makeS3Key(x.Argument.AwsS3Prefix, x.Argument.AwsS3AddTimeKey, time.Now().UTC())

	reader, writer := io.Pipe()
	x.pipe = writer
	x.resultCh = make(chan *uploadResult, 1)

	uploader := newS3Uploader(x.Argument.AwsRegion)

	go func() {
		defer close(x.resultCh)
		resp, err := uploader.Upload(&s3manager.UploadInput{
			Body:   reader,
			Bucket: aws.String(x.Argument.AwsS3Bucket),
			Key:    aws.String(x.s3Key),
		})
		// Unblock writer if upload stopped before reading whole stream.
		reader.CloseWithError(err)
		x.resultCh <- &uploadResult{resp: resp, err: err}
	}()

	Logger.WithFields(logrus.Fields{
		"bucket": x.Argument.AwsS3Bucket,
		"key":    x.s3Key,
	}).Debug("Started S3 upload")

	return nil
}

func (x *s3Emitter) emit(data []byte) error {
	if _, err := x.pipe.Write(data); err != nil {
		return wrapIO(err, "Fail to stream capture data to S3")
	}
	return nil
}

func (x *s3Emitter) teardown() error {
	if x.pipe == nil {
		return nil
	}

	x.pipe.Close()
	x.pipe = nil

	result := <-x.resultCh
	if result.err != nil {
		return wrapIO(result.err, "Fail to PutObject in Emitter")
	}

	Logger.WithFields(logrus.Fields{
		"s3resp": result.resp,
		"bucket": x.Argument.AwsS3Bucket,
		"key":    x.s3Key,
	}).Trace("Uploaded capture file to S3")

	return nil
}
