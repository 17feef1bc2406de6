package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic-io/ferry/app"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/monitor"
	"github.com/elastic-io/ferry/internal/options"
	"github.com/urfave/cli"
)

var runCommand = cli.Command{
	Name:        "run",
	Usage:       "run the upload coordinator",
	ArgsUsage:   ``,
	Description: ``,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "endpoint, e",
			Value:  "localhost:1987",
			Usage:  "Upload coordinator server address",
			EnvVar: "FERRY_ENDPOINT",
		},
		cli.StringFlag{
			Name:   "data, d",
			Value:  "./data",
			Usage:  "Data directory for session records",
			EnvVar: "FERRY_DATA_DIR",
		},
		cli.BoolFlag{
			Name:   "auth, a",
			Usage:  "Enable basic authentication",
			EnvVar: "FERRY_AUTH_ENABLED",
		},
		cli.StringFlag{
			Name:   "username, u",
			Value:  "",
			Usage:  "Basic auth username",
			EnvVar: "FERRY_USERNAME",
		},
		cli.StringFlag{
			Name:   "password, pw",
			Value:  "",
			Usage:  "Basic auth password",
			EnvVar: "FERRY_PASSWORD",
		},
		cli.StringFlag{
			Name:   "cert, c",
			Value:  "",
			Usage:  "TLS certificate file path",
			EnvVar: "FERRY_CERT_FILE",
		},
		cli.StringFlag{
			Name:   "key, k",
			Value:  "",
			Usage:  "TLS private key file path",
			EnvVar: "FERRY_KEY_FILE",
		},
		cli.IntFlag{
			Name:  "presign-expiry",
			Value: 3600,
			Usage: "Lifetime in seconds of per-part upload URLs",
		},
		cli.IntFlag{
			Name:  "retention-days",
			Value: 7,
			Usage: "Days to keep aborted and failed session records",
		},
		cli.IntFlag{
			Name:  "sweep-interval",
			Value: 3600,
			Usage: "Seconds between cleanup sweeps",
		},
		cli.StringFlag{
			Name:   "secret",
			Value:  "",
			Usage:  "Signing secret for part upload tokens",
			EnvVar: "FERRY_SIGNING_SECRET",
		},
		cli.StringFlag{
			Name:   "s3-endpoint",
			Value:  "",
			Usage:  "S3 endpoint URL",
			EnvVar: "FERRY_S3_ENDPOINT",
		},
		cli.StringFlag{
			Name:   "s3-region",
			Value:  "us-east-1",
			Usage:  "S3 region",
			EnvVar: "FERRY_S3_REGION",
		},
		cli.StringFlag{
			Name:   "s3-bucket",
			Value:  "",
			Usage:  "S3 bucket; setting it selects the native multipart backend",
			EnvVar: "FERRY_S3_BUCKET",
		},
		cli.StringFlag{
			Name:   "s3-ak",
			Value:  "",
			Usage:  "S3 access key",
			EnvVar: "FERRY_S3_ACCESS_KEY",
		},
		cli.StringFlag{
			Name:   "s3-sk",
			Value:  "",
			Usage:  "S3 secret key",
			EnvVar: "FERRY_S3_SECRET_KEY",
		},
		cli.StringFlag{
			Name:   "object-dir",
			Value:  "./objects",
			Usage:  "Root directory for locally staged and assembled objects",
			EnvVar: "FERRY_OBJECT_DIR",
		},
	},
	Action: func(ctx *cli.Context) error {
		if err := checkArgs(ctx, 0, exactArgs); err != nil {
			return err
		}
		return Main(ctx)
	},
}

func Main(ctx *cli.Context) error {
	opts := options.New(ctx)
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	app, err := app.New(opts)
	if err != nil {
		return err
	}

	go monitor.MemoryUsage()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	errCh := make(chan error, 1)

	go func() {
		if err := app.Run(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	log.Logger.Info("Application startup successfully")

	select {
	case receivedSignal := <-signalCh:
		log.Logger.Debug("Received signal: ", receivedSignal, ", initiating graceful shutdown...")
	case err = <-errCh:
		if err != nil {
			log.Logger.Debug("Application error: ", err.Error(), ", shutting down...")
		} else {
			log.Logger.Debug("Application completed successfully, shutting down...")
		}
	}

	log.Logger.Info("Stopping application...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopErrCh := make(chan error, 1)
	go func() {
		stopErrCh <- app.Stop()
		close(stopErrCh)
	}()

	select {
	case stopErr := <-stopErrCh:
		if stopErr != nil {
			log.Logger.Debug("Error during shutdown: ", stopErr)
			if err == nil {
				err = stopErr
			}
		}
	case <-stopCtx.Done():
		log.Logger.Debug("Shutdown timed out")
		if err == nil {
			err = stopCtx.Err()
		}
	}
	log.Logger.Debug("Application shutdown complete")
	return err
}
