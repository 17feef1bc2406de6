package options

import (
	"flag"
	"testing"

	"github.com/elastic-io/ferry/internal/config"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func setupContext(t *testing.T, args map[string]string) *cli.Context {
	set := flag.NewFlagSet("test", 0)

	set.String("data", "./data", "")
	set.String("engine", "bolt", "")
	set.String("body", "256M", "")

	set.String("endpoint", "localhost:1987", "")
	set.Bool("auth", false, "")
	set.String("username", "", "")
	set.String("password", "", "")
	set.String("cert", "", "")
	set.String("key", "", "")
	set.Int("presign-expiry", 3600, "")
	set.Int("retention-days", 7, "")
	set.Int("sweep-interval", 3600, "")
	set.String("secret", "", "")
	set.String("s3-endpoint", "", "")
	set.String("s3-region", "us-east-1", "")
	set.String("s3-bucket", "", "")
	set.String("s3-ak", "", "")
	set.String("s3-sk", "", "")
	set.String("object-dir", "", "")

	mods := cli.StringSlice{"upload"}
	set.Var(&mods, "mod", "")

	for name, value := range args {
		require.NoError(t, set.Set(name, value))
	}

	return cli.NewContext(nil, set, nil)
}

func TestNew(t *testing.T) {
	opts := New(setupContext(t, map[string]string{
		"data": "/tmp/ferry-data",
		"body": "64M",
	}))

	require.NotNil(t, opts)
	assert.Equal(t, "/tmp/ferry-data", opts.DataDir)
	assert.Equal(t, "bolt", opts.Engine)
	require.NotNil(t, opts.Config)
	assert.Equal(t, 64<<20, opts.Config.BodyLimit)
}

func TestValidate(t *testing.T) {
	log.Init("", "debug")

	t.Run("all fields set", func(t *testing.T) {
		opts := &Options{
			DataDir: "/tmp/data",
			Engine:  "bolt",
			Config:  &config.Config{},
		}
		assert.NoError(t, opts.Validate())
	})

	t.Run("empty data dir", func(t *testing.T) {
		opts := &Options{Engine: "bolt", Config: &config.Config{}}
		assert.Error(t, opts.Validate())
	})

	t.Run("empty engine falls back to default", func(t *testing.T) {
		opts := &Options{DataDir: "/tmp/data", Config: &config.Config{}}
		assert.NoError(t, opts.Validate())
	})
}
