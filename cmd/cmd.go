package cmd

import (
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	_ "github.com/elastic-io/ferry/internal/api/upload"
	_ "github.com/elastic-io/ferry/internal/backend/local"
	_ "github.com/elastic-io/ferry/internal/backend/s3"
	"github.com/elastic-io/ferry/internal/log"
	_ "github.com/elastic-io/ferry/internal/store/badger"
	_ "github.com/elastic-io/ferry/internal/store/bolt"
	"github.com/elastic-io/ferry/internal/utils"
	"github.com/urfave/cli"
)

func Execute(name, usage, version, commit string) {
	app := cli.NewApp()
	app.Name = name
	app.Usage = usage

	v := []string{version}

	if commit != "" {
		v = append(v, "commit: "+commit)
	}
	v = append(v, "go: "+runtime.Version())
	app.Version = strings.Join(v, "\n")

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "endpoint, e",
			Value:  "localhost:1987",
			Usage:  "Upload coordinator server address",
			EnvVar: "FERRY_ENDPOINT",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "set the log file to write ferry logs to (default is '/dev/stderr')",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "debug",
			Usage: "set the log level ('DEBUG/debug', 'INFO/info', 'WARN/warn', 'ERROR/error', 'FATAL/fatal')",
		},
		cli.StringFlag{
			Name:  "engine",
			Value: "bolt",
			Usage: "session store engine",
		},
		cli.StringFlag{
			Name:  "body",
			Value: "256M",
			Usage: "set the body size",
		},
		cli.StringSliceFlag{
			Name:  "mod",
			Value: &cli.StringSlice{"upload"},
			Usage: "API modules to serve",
		},
		cli.StringFlag{
			Name:  "tmp",
			Value: "./tmp",
			Usage: "set the tmp directory",
		},
		cli.IntFlag{
			Name:  "gc-percent",
			Value: 30,
			Usage: "set the garbage collection percent",
		},
		cli.StringFlag{
			Name:  "memory-limit",
			Value: "4G",
			Usage: "set the memory limit",
		},
	}

	app.Commands = []cli.Command{
		runCommand,
		sweepCommand,
	}

	app.Before = func(ctx *cli.Context) error {
		log.Init(ctx.String("log"), ctx.String("log-level"))
		os.Setenv("TMPDIR", ctx.String("tmp"))

		debug.SetGCPercent(ctx.Int("gc-percent"))
		debug.SetMemoryLimit(int64(utils.MustParseSize(ctx.String("memory-limit"))))
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		panic(err)
	}
}
