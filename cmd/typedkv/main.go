package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/khicago/typedkv"
	"github.com/khicago/typedkv/codec"
)

func main() {
	godotenv.Load() // Load .env file if present

	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}

type kvStore = typedkv.Store[any, any]

func newApp(out, logs io.Writer) *cli.App {
	return &cli.App{
		Name:      "typedkv",
		Usage:     "read and write a typed, prefix-scoped key/value namespace",
		Writer:    out,
		ErrWriter: logs,
		Flags:     globalFlags,
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "print the value stored under a key",
				ArgsUsage: "KEY",
				Action: withStore(1, func(ctx context.Context, c *cli.Context, st *kvStore) error {
					key, err := codec.ParseValue(st.KeyType(), c.Args().Get(0))
					if err != nil {
						return err
					}
					v, ok, err := st.Get(ctx, key)
					if err != nil {
						return err
					}
					return printValue(c, st, v, ok)
				}),
			},
			{
				Name:      "put",
				Usage:     "store a value and print the one it replaced",
				ArgsUsage: "KEY VALUE",
				Action: withStore(2, func(ctx context.Context, c *cli.Context, st *kvStore) error {
					key, err := codec.ParseValue(st.KeyType(), c.Args().Get(0))
					if err != nil {
						return err
					}
					value, err := codec.ParseValue(st.ValueType(), c.Args().Get(1))
					if err != nil {
						return err
					}
					prev, ok, err := st.Put(ctx, key, value)
					if err != nil {
						return err
					}
					return printValue(c, st, prev, ok)
				}),
			},
			{
				Name:      "remove",
				Usage:     "delete a key and print the value it held",
				ArgsUsage: "KEY",
				Action: withStore(1, func(ctx context.Context, c *cli.Context, st *kvStore) error {
					key, err := codec.ParseValue(st.KeyType(), c.Args().Get(0))
					if err != nil {
						return err
					}
					v, ok, err := st.Remove(ctx, key)
					if err != nil {
						return err
					}
					return printValue(c, st, v, ok)
				}),
			},
			{
				Name:      "exists",
				Usage:     "report whether a key has a value",
				ArgsUsage: "KEY",
				Action: withStore(1, func(ctx context.Context, c *cli.Context, st *kvStore) error {
					key, err := codec.ParseValue(st.KeyType(), c.Args().Get(0))
					if err != nil {
						return err
					}
					ok, err := st.ContainsKey(ctx, key)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, ok)
					return nil
				}),
			},
			{
				Name:  "size",
				Usage: "count the keys of the namespace",
				Action: withStore(0, func(ctx context.Context, c *cli.Context, st *kvStore) error {
					n, err := st.Size(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, n)
					return nil
				}),
			},
			{
				Name:  "clear",
				Usage: "delete every key of the namespace",
				Action: withStore(0, func(ctx context.Context, c *cli.Context, st *kvStore) error {
					if err := st.Clear(ctx); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "OK")
					return nil
				}),
			},
			{
				Name:  "keys",
				Usage: "list the keys of the namespace",
				Action: withStore(0, func(ctx context.Context, c *cli.Context, st *kvStore) error {
					keys, err := st.Keys(ctx)
					if err != nil {
						return err
					}
					for _, k := range keys {
						s, err := codec.FormatValue(st.KeyType(), k)
						if err != nil {
							return err
						}
						fmt.Fprintln(c.App.Writer, s)
					}
					return nil
				}),
			},
		},
	}
}

// withStore validates the argument count, then runs fn inside a store session.
func withStore(args int, fn func(ctx context.Context, c *cli.Context, st *kvStore) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Args().Len() != args {
			return fmt.Errorf("wrong arguments count, expected=%d, got=%d", args, c.Args().Len())
		}
		logger := setupLogger(c.App.ErrWriter, c.String("log-level"))

		cfg, err := storeConfig(c)
		if err != nil {
			return err
		}
		reg, err := registry(c)
		if err != nil {
			return err
		}
		d, err := driver(c.String("backend"))
		if err != nil {
			return err
		}
		st, err := typedkv.New[any, any](cfg,
			typedkv.WithDriver(d),
			typedkv.WithRegistry(reg),
			typedkv.WithLogger(typedkv.NewZerologLogger(logger)),
			typedkv.WithPersistOnClose(c.Bool("save")))
		if err != nil {
			return err
		}

		ctx := logger.WithContext(c.Context)
		return st.Session(ctx, func(st *kvStore) error {
			return fn(ctx, c, st)
		})
	}
}

func printValue(c *cli.Context, st *kvStore, v any, ok bool) error {
	if !ok {
		fmt.Fprintln(c.App.Writer, "(nil)")
		return nil
	}
	s, err := codec.FormatValue(st.ValueType(), v)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, s)
	return nil
}
