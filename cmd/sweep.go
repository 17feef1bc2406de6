package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/service"
	"github.com/elastic-io/ferry/internal/store"
	"github.com/urfave/cli"
)

// sweepCommand runs both cleanup passes once and exits. Useful when the
// coordinator is down and leftover sessions need reclaiming out of band.
var sweepCommand = cli.Command{
	Name:      "sweep",
	Usage:     "abort expired upload sessions and delete stale records",
	ArgsUsage: ``,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "data, d",
			Value:  "./data",
			Usage:  "Data directory for session records",
			EnvVar: "FERRY_DATA_DIR",
		},
		cli.IntFlag{
			Name:  "retention-days",
			Value: 7,
			Usage: "Days to keep aborted and failed session records",
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
		return sweepOnce(ctx)
	},
}

func sweepOnce(ctx *cli.Context) error {
	dbPath := filepath.Join(ctx.String("data"), "sessions.db")
	st, err := store.NewSessionStore(ctx.GlobalString("engine"), dbPath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()

	name := "local"
	if ctx.String("s3-bucket") != "" {
		name = "s3"
	}
	be, err := backend.New(name, backend.Options{
		Endpoint:      ctx.String("s3-endpoint"),
		Region:        ctx.String("s3-region"),
		Bucket:        ctx.String("s3-bucket"),
		AccessKey:     ctx.String("s3-ak"),
		SecretKey:     ctx.String("s3-sk"),
		Dir:           ctx.String("object-dir"),
		SigningSecret: ctx.String("secret"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize %s backend: %w", name, err)
	}

	retention := time.Duration(ctx.Int("retention-days")) * 24 * time.Hour
	cleanup := service.NewCleanupService(st, be, retention, 0)

	now := time.Now()
	aborted := cleanup.SweepExpired(now)
	deleted := cleanup.SweepRetention(now)
	log.Logger.Info("Sweep finished: aborted ", aborted, " expired sessions, deleted ", deleted, " stale records")
	return nil
}
