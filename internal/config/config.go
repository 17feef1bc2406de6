package config

import (
	"fmt"
	"time"

	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/store"
	"github.com/elastic-io/ferry/internal/types"
	"github.com/urfave/cli"
)

const (
	DefaultPresignExpiry = 3600 * time.Second
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultSweepInterval = 1 * time.Hour
)

type Config struct {
	Endpoint   string
	EnableAuth bool
	Username   string
	Password   string
	CertFile   string
	KeyFile    string
	BodyLimit  int
	Modules    []string

	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int

	PresignExpiry time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
	SigningSecret string

	// Object storage. A configured S3 bucket selects the native multipart
	// backend; otherwise parts are staged on the local filesystem under
	// ObjectDir.
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	ObjectDir   string

	Store   store.SessionStore
	Backend backend.Backend
}

func New(ctx *cli.Context) *Config {
	c := &Config{BodyLimit: 256 * types.MB}
	c.Endpoint = ctx.String("endpoint")
	c.EnableAuth = ctx.Bool("auth")
	c.Username = ctx.String("username")
	c.Password = ctx.String("password")
	c.CertFile = ctx.String("cert")
	c.KeyFile = ctx.String("key")
	c.Modules = ctx.GlobalStringSlice("mod")

	c.PresignExpiry = time.Duration(ctx.Int("presign-expiry")) * time.Second
	c.Retention = time.Duration(ctx.Int("retention-days")) * 24 * time.Hour
	c.SweepInterval = time.Duration(ctx.Int("sweep-interval")) * time.Second
	c.SigningSecret = ctx.String("secret")

	c.S3Endpoint = ctx.String("s3-endpoint")
	c.S3Region = ctx.String("s3-region")
	c.S3Bucket = ctx.String("s3-bucket")
	c.S3AccessKey = ctx.String("s3-ak")
	c.S3SecretKey = ctx.String("s3-sk")
	c.ObjectDir = ctx.String("object-dir")
	return c
}

// NativeMultipart reports whether the configured object storage speaks a
// native multipart protocol.
func (c *Config) NativeMultipart() bool {
	return c.S3Bucket != ""
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if len(c.Modules) == 0 {
		return fmt.Errorf("at least one module is required")
	}
	if c.PresignExpiry <= 0 {
		return fmt.Errorf("presign expiry must be positive")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention window must be positive")
	}
	if !c.NativeMultipart() {
		if c.ObjectDir == "" {
			return fmt.Errorf("object directory is required without an s3 bucket")
		}
		if c.SigningSecret == "" {
			return fmt.Errorf("signing secret is required for the local backend")
		}
	}
	if c.Store == nil {
		return fmt.Errorf("session store is required")
	}
	if c.Backend == nil {
		return fmt.Errorf("storage backend is required")
	}
	return nil
}
