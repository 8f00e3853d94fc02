package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/snapcache/cache"
)

var errNotFound = errors.New("key not found")

// withCache runs fn against the configured cache and closes it afterwards.
func withCache(cmd *cobra.Command, fn func(c cache.Cache[json.RawMessage]) error) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	c, err := a.open(nil)
	if err != nil {
		return err
	}
	defer a.close(c)
	return fn(c)
}

func buildSetCmd() *cobra.Command {
	var ttl string
	cmd := &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Store a JSON value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], []byte(args[1])
			if !json.Valid(raw) {
				return fmt.Errorf("value %q is not valid JSON (quote strings: '\"text\"')", args[1])
			}
			var d cacheTTL
			if cmd.Flags().Changed("ttl") {
				if err := d.parse(ttl); err != nil {
					return err
				}
			}
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				if d.set {
					c.SetWithTTL(key, raw, d.ttl)
				} else {
					c.Set(key, raw)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ttl, "ttl", "", "time to live, e.g. 30s; 0 or none = never expires (default: cache.default_ttl)")
	return cmd
}

func buildGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				v, ok := c.Get(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", errNotFound, args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(v))
				return nil
			})
		},
	}
}

func buildHasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "has <key>",
		Short: "Report whether a live key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				fmt.Fprintln(cmd.OutOrStdout(), c.Has(args[0]))
				return nil
			})
		},
	}
}

func buildDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				if !c.Delete(args[0]) {
					return fmt.Errorf("%w: %s", errNotFound, args[0])
				}
				return nil
			})
		},
	}
}

func buildKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List live keys, most recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				for _, k := range c.Keys() {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
}

func buildSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the number of live entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				fmt.Fprintln(cmd.OutOrStdout(), c.Len())
				return nil
			})
		},
	}
}

func buildClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				c.Clear()
				return nil
			})
		},
	}
}

func buildExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the snapshot document to stdout or a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				if output == "" {
					return c.Export(cmd.OutOrStdout())
				}
				return exportFile(c, output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default stdout)")
	return cmd
}

// exportFile writes the snapshot document to path.
func exportFile(c cache.Cache[json.RawMessage], path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return exportTo(c, f)
}

// exportTo exports into w and closes it. A failed close is reported, since
// it can leave the output truncated.
func exportTo(c cache.Cache[json.RawMessage], w io.WriteCloser) (err error) {
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	return c.Export(w)
}

func buildImportCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the cache contents with a snapshot document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return withCache(cmd, func(c cache.Cache[json.RawMessage]) error {
				return c.Import(r)
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "source file (default stdin)")
	return cmd
}
