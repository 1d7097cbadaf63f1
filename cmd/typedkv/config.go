package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/khicago/typedkv"
	"github.com/khicago/typedkv/boltdriver"
	"github.com/khicago/typedkv/codec"
	"github.com/khicago/typedkv/redisdriver"
)

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML file with the store options; flags override it",
		EnvVars: []string{"TYPEDKV_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "backend",
		Usage:   "redis, bolt or memory",
		Value:   "redis",
		EnvVars: []string{"TYPEDKV_BACKEND"},
	},
	&cli.StringFlag{
		Name:    "url",
		Usage:   "backend url, e.g. redis://:password@localhost:6379/0 or bolt:///tmp/kv.db",
		EnvVars: []string{"TYPEDKV_URL"},
	},
	&cli.StringFlag{
		Name:    "host",
		Usage:   "backend host when no url is given",
		EnvVars: []string{"TYPEDKV_HOST"},
	},
	&cli.IntFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "backend port when no url is given",
		EnvVars: []string{"TYPEDKV_PORT"},
	},
	&cli.StringFlag{
		Name:    "password",
		Usage:   "backend password when no url is given; may be empty",
		EnvVars: []string{"TYPEDKV_PASSWORD"},
	},
	&cli.IntFlag{
		Name:    "db",
		Usage:   "database number when no url is given",
		EnvVars: []string{"TYPEDKV_DB"},
	},
	&cli.StringFlag{
		Name:    "prefix",
		Usage:   "key prefix of the namespace",
		EnvVars: []string{"TYPEDKV_PREFIX"},
	},
	&cli.StringFlag{
		Name:    "key",
		Usage:   "key type: text, int32, int64, float64, uuid or an --enum name",
		EnvVars: []string{"TYPEDKV_KEY"},
	},
	&cli.StringFlag{
		Name:    "value",
		Usage:   "value type: text, int32, int64, float64, uuid or an --enum name",
		EnvVars: []string{"TYPEDKV_VALUE"},
	},
	&cli.StringSliceFlag{
		Name:    "enum",
		Usage:   "declare an enum type as Name=VARIANT1|VARIANT2",
		EnvVars: []string{"TYPEDKV_ENUMS"},
	},
	&cli.BoolFlag{
		Name:    "save",
		Usage:   "ask the backend to persist before exiting",
		Value:   true,
		EnvVars: []string{"TYPEDKV_SAVE"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "debug, info, warn or error",
		Value:   "error",
		EnvVars: []string{"TYPEDKV_LOG_LEVEL"},
	},
}

// storeConfig merges the config file with the flags that were set.
func storeConfig(c *cli.Context) (typedkv.Config, error) {
	var cfg typedkv.Config
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = typedkv.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("url") {
		cfg.URL = c.String("url")
	}
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("password") {
		cfg.Password = typedkv.String(c.String("password"))
	}
	if c.IsSet("db") {
		cfg.Database = typedkv.Int(c.Int("db"))
	}
	if c.IsSet("prefix") {
		cfg.Prefix = c.String("prefix")
	}
	if c.IsSet("key") {
		cfg.Key = c.String("key")
	}
	if c.IsSet("value") {
		cfg.Value = c.String("value")
	}
	return cfg, nil
}

// registry declares the --enum types.
func registry(c *cli.Context) (*codec.Registry, error) {
	reg := codec.NewRegistry()
	for _, decl := range c.StringSlice("enum") {
		name, body, ok := strings.Cut(decl, "=")
		if !ok || name == "" || body == "" {
			return nil, fmt.Errorf("enum declaration %q is not Name=A|B", decl)
		}
		if err := reg.Register(codec.StringEnum(name, strings.Split(body, "|")...)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func driver(backend string) (typedkv.Driver, error) {
	switch backend {
	case "redis":
		return redisdriver.New(), nil
	case "bolt":
		return boltdriver.New(), nil
	case "memory":
		return typedkv.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
