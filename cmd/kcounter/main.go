// Command kcounter inspect and update a counter store, feed chat logs through the
// plugins and serve the admin http api.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	c "github.com/d0ngw/kcounter/common"
	"github.com/d0ngw/kcounter/counter"
	"github.com/d0ngw/kcounter/http"
	"github.com/d0ngw/kcounter/plugins"
)

type rootFlags struct {
	config  string
	file    string
	format  string
	timeout time.Duration
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		c.SyncLogger()
		os.Exit(1)
	}
	c.SyncLogger()
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "kcounter",
		Short:         "Concurrent-safe, crash-consistent key counter",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.verbose {
				c.SetLogLevel(c.Debug)
			} else {
				c.SetLogLevel(c.Warn)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "YAML config file, overrides --file and --format")
	pf.StringVar(&flags.file, "file", "kcounter.txt", "Counter file of the file store")
	pf.StringVar(&flags.format, "format", counter.FormatText, "Format of the counter file: text, json or msgpack")
	pf.DurationVar(&flags.timeout, "timeout", 10*time.Second, "Timeout of lookup, incr, dump and feed, 0 for none")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug messages to stderr")

	root.AddCommand(
		&cobra.Command{
			Use:   "lookup <key>",
			Short: "Print the count of key, 0 if absent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, flags, func(ctx context.Context, conf *AppConfig, store counter.Store) error {
					n, err := store.Lookup(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "incr <key>",
			Short: "Increment the count of key by one and print the new count",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, flags, func(ctx context.Context, conf *AppConfig, store counter.Store) error {
					n, err := store.Increment(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), n)
					return nil
				})
			},
		},
		newDumpCmd(&flags),
		newFeedCmd(&flags),
		newServeCmd(&flags),
	)
	return root
}

func newDumpCmd(flags *rootFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print all the entries sorted by key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := counter.CodecByName(output)
			if err != nil {
				return err
			}
			return withStore(cmd, *flags, func(ctx context.Context, conf *AppConfig, store counter.Store) error {
				fields, err := store.Snapshot(ctx)
				if err != nil {
					return err
				}
				return codec.Encode(cmd.OutOrStdout(), fields)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", counter.FormatText, "Output format: text or json")
	return cmd
}

func newFeedCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "feed [file|-]",
		Short: `Run chat log lines such as "<alice> wtf" through the plugins and print the replies`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) > 0 {
				input = args[0]
			}
			return withStore(cmd, *flags, func(ctx context.Context, conf *AppConfig, store counter.Store) error {
				registry, err := plugins.NewRegistryWithStore(store, conf.Plugins)
				if err != nil {
					return err
				}
				stats, err := feed(ctx, registry, input, cmd.InOrStdin(), cmd.OutOrStdout())
				fmt.Fprintf(cmd.ErrOrStderr(), "messages:%d,commands:%d,skipped:%d\n", stats.messages, stats.commands, stats.skipped)
				return err
			})
		},
	}
}

type feedStats struct {
	messages int
	commands int
	skipped  int
}

// feed dispatch the chat lines of input, "-" is stdin
func feed(ctx context.Context, registry *plugins.Registry, input string, stdin io.Reader, out io.Writer) (stats feedStats, err error) {
	inputErr := c.ProcessFileLines(input, stdin, func(line string, lineNum int, readErr error) bool {
		if readErr != nil {
			err = readErr
			return true
		}
		msg, ok := plugins.ParseChatLine(line)
		if !ok {
			c.Debugf("skip line %d: %q", lineNum, line)
			stats.skipped++
			return false
		}
		stats.messages++
		reply, handled, dispatchErr := registry.Dispatch(ctx, msg)
		if dispatchErr != nil {
			err = fmt.Errorf("line %d: %w", lineNum, dispatchErr)
			return true
		}
		if handled {
			stats.commands++
			if reply != "" {
				fmt.Fprintln(out, reply)
			}
		}
		return false
	})
	if inputErr != nil {
		err = inputErr
	}
	return
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin http api until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				conf.HTTP.Addr = addr
			}
			all, err := newServices(conf)
			if err != nil {
				return err
			}
			stopping, err := c.StartServices(all)
			if err != nil {
				return err
			}
			hook := c.NewShutdownhook()
			hook.AddHook(func() { stopping.Stop() })
			hook.WaitShutdown()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides http.addr of the config")
	return cmd
}

// newServices wire the store, the plugins and the admin http api
func newServices(conf *AppConfig) ([]c.Service, error) {
	storeService := counter.NewStoreService(conf.Counter)
	storeService.Order = 0
	registry, err := plugins.NewRegistryWithStore(storeService, conf.Plugins)
	if err != nil {
		return nil, err
	}
	httpConf := conf.HTTP
	if err := httpConf.RegMiddleware(http.AccessLog); err != nil {
		return nil, err
	}
	if err := httpConf.RegMiddleware(http.Recover); err != nil {
		return nil, err
	}
	if err := httpConf.RegController(http.NewCounterController(storeService)); err != nil {
		return nil, err
	}
	if err := httpConf.RegController(http.NewBotController(registry)); err != nil {
		return nil, err
	}
	httpService := http.NewService("admin", httpConf)
	httpService.Order = 1
	return []c.Service{storeService, httpService}, nil
}

// loadConfig load the app config, --verbose wins over the log level of the config
func (p rootFlags) loadConfig() (*AppConfig, error) {
	conf, err := loadConfig(p.config, p.file, p.format)
	if err != nil {
		return nil, err
	}
	if p.verbose {
		c.SetLogLevel(c.Debug)
	}
	return conf, nil
}

func withStore(cmd *cobra.Command, flags rootFlags, fn func(ctx context.Context, conf *AppConfig, store counter.Store) error) error {
	conf, err := flags.loadConfig()
	if err != nil {
		return err
	}
	store, err := counter.Open(conf.Counter)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			c.Errorf("close store %s fail,err:%v", store.Name(), closeErr)
		}
	}()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}
	return fn(ctx, conf, store)
}
