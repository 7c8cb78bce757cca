package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v6"
	"github.com/m-mizutani/hdlcap/pkg/hdlcap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = hdlcap.Logger

type config struct {
	LogLevel       string `env:"HDLCAP_LOG_LEVEL" envDefault:"info"`
	LogFile        string `env:"HDLCAP_LOG_FILE"`
	Emitter        string `env:"HDLCAP_EMITTER" envDefault:"fs"`
	LengthPolicy   string `env:"HDLCAP_LENGTH_POLICY" envDefault:"permissive"`
	QueueSize      int    `env:"HDLCAP_QUEUE_SIZE" envDefault:"1024"`
	KafkaGroupID   string `env:"HDLCAP_KAFKA_GROUP" envDefault:"hdlcap"`
	AwsRegion      string `env:"HDLCAP_AWS_REGION"`
	AwsS3Bucket    string `env:"HDLCAP_AWS_S3_BUCKET"`
	AwsS3Prefix    string `env:"HDLCAP_AWS_S3_PREFIX"`
	AwsS3TimeKey   bool   `env:"HDLCAP_AWS_S3_ADD_TIME_KEY"`
	DatagramSize   int    `env:"HDLCAP_DATAGRAM_SIZE" envDefault:"1206"`
	MaxBundleCount int    `env:"HDLCAP_MAX_BUNDLE_PACKETS" envDefault:"4096"`
}

func setupLogger(level, logFile string) error {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(hdlcap.ErrConfiguration, "Invalid log level: %s", level)
	}
	logger.SetLevel(lv)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if logFile != "" {
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}
	return nil
}

func newApp(cfg config) *cli.App {
	app := cli.NewApp()
	app.Name = "hdlcap"
	app.Usage = "Convert Velodyne HDL packet stream to pcap file"
	app.ArgsUsage = "SOURCE OUTPUT  (SOURCE: udp://[host][:port] or kafka://broker[,broker]/topic)"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "emitter, e", Value: cfg.Emitter, Usage: "Output emitter [fs|s3]"},
		cli.StringFlag{Name: "length-policy", Value: cfg.LengthPolicy,
			Usage: "Length fields of record header [permissive|actual|strict]"},
		cli.IntFlag{Name: "datagram-size", Value: cfg.DatagramSize, Usage: "Size of sensor data packet"},
		cli.IntFlag{Name: "queue-size", Value: cfg.QueueSize, Usage: "Queue size between source and writer"},
		cli.IntFlag{Name: "max-bundle-packets", Value: cfg.MaxBundleCount, Usage: "Max packets of a UDP bundle"},
		cli.StringFlag{Name: "kafka-group", Value: cfg.KafkaGroupID, Usage: "Consumer group of kafka source"},
		cli.StringFlag{Name: "aws-region", Value: cfg.AwsRegion, Usage: "AWS region of S3 bucket"},
		cli.StringFlag{Name: "aws-s3-bucket", Value: cfg.AwsS3Bucket, Usage: "S3 bucket name"},
		cli.StringFlag{Name: "aws-s3-prefix", Value: cfg.AwsS3Prefix, Usage: "Prefix of S3 object key"},
		cli.BoolFlag{Name: "aws-s3-add-time-key", Usage: "Add YYYY/MM/DD/HH/ to S3 object key"},
		cli.StringFlag{Name: "log-level, l", Value: cfg.LogLevel, Usage: "Log level [trace|debug|info|warn|error]"},
		cli.StringFlag{Name: "log-file", Value: cfg.LogFile, Usage: "Also write logs to the file with rotation"},
	}

	app.Action = func(c *cli.Context) error {
		if err := setupLogger(c.String("log-level"), c.String("log-file")); err != nil {
			return err
		}

		// OUTPUT is not needed for s3 emitter
		if c.NArg() < 1 || c.NArg() > 2 {
			return errors.Wrap(hdlcap.ErrConfiguration, "SOURCE and OUTPUT are required")
		}

		src, err := hdlcap.ParseSource(c.Args().Get(0))
		if err != nil {
			return err
		}
		src.UDP.DatagramSize = c.Int("datagram-size")
		src.UDP.MaxBundlePackets = c.Int("max-bundle-packets")
		src.Kafka.GroupID = c.String("kafka-group")

		proc, err := hdlcap.NewPacketProcessor(hdlcap.PacketProcessorArgument{
			EncoderArgs: hdlcap.EncoderArguments{
				DatagramSize: c.Int("datagram-size"),
				LengthPolicy: c.String("length-policy"),
			},
			EmitterArgs: hdlcap.EmitterArguments{
				Name:            c.String("emitter"),
				FsFileName:      c.Args().Get(1),
				AwsRegion:       c.String("aws-region"),
				AwsS3Bucket:     c.String("aws-s3-bucket"),
				AwsS3Prefix:     c.String("aws-s3-prefix"),
				AwsS3AddTimeKey: cfg.AwsS3TimeKey || c.Bool("aws-s3-add-time-key"),
			},
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		capture := hdlcap.New(*src)
		capture.QueueSize = c.Int("queue-size")

		logger.WithFields(logrus.Fields{
			"source": c.Args().Get(0),
			"output": c.Args().Get(1),
		}).Info("Start capturing. Press Ctrl+C to finish")

		if err := capture.Start(ctx, proc); err != nil {
			return err
		}

		logger.WithField("total", proc.Total()).Info("Finished")
		return nil
	}

	return app
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.WithError(err).Fatal("Fail to parse environment variables")
	}

	if err := newApp(cfg).Run(os.Args); err != nil {
		logger.WithError(err).Fatal("Exit with error")
	}
}
