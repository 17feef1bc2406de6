package options

import (
	"fmt"

	"github.com/elastic-io/ferry/internal/config"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/utils"
	"github.com/urfave/cli"
)

type Options struct {
	DataDir  string
	Engine   string
	BodySize string
	Config   *config.Config
}

func New(ctx *cli.Context) *Options {
	opts := Options{}
	opts.DataDir = ctx.String("data")
	opts.Engine = ctx.GlobalString("engine")
	opts.BodySize = ctx.GlobalString("body")

	l := len(opts.BodySize)
	size, err := utils.ParseSize(opts.BodySize[0:l-1], opts.BodySize[l-1:])
	if err != nil {
		panic(err)
	}

	opts.Config = config.New(ctx)
	if size > 0 {
		opts.Config.BodyLimit = size
	}
	return &opts
}

func (o *Options) Validate() error {
	if o.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if o.Engine == "" {
		log.Logger.Warn("session store engine is not set, using default engine")
	}
	return nil
}
