package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/vipnode/ethrpc/client"
	"github.com/vipnode/ethrpc/ethnode"
	"github.com/vipnode/ethrpc/jsonrpc2"
	"github.com/vipnode/ethrpc/msghandler"
	"github.com/vipnode/ethrpc/transport"
	"github.com/vipnode/ethrpc/transport/ipc"
	"github.com/vipnode/ethrpc/transport/ws"
)

// Version of the binary, assigned during build.
var Version string = "dev"

// Options contains the flag options. Everything but --config can also be set
// in the INI config file.
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging." no-ini:"true"`
	Version bool   `long:"version" description:"Print version and exit." no-ini:"true"`
	Config  string `long:"config" description:"Path to an INI config file. (default: ethrpc/config.ini in the XDG config dir)" no-ini:"true"`

	Endpoint  string        `long:"endpoint" description:"URL or IPC socket path of the node. (default: geth.ipc in the Ethereum data dir)"`
	Transport string        `long:"transport" description:"Transport to use (http|ws|ipc), guessed from the endpoint if not set."`
	Timeout   time.Duration `long:"timeout" description:"Timeout of each request. (default: 30s)"`
	Dialer    string        `long:"dialer" description:"WebSocket implementation. (gorilla|gobwas)"`
	PoolSize  int           `long:"pool-size" description:"Maximum number of IPC sockets. (default: 10)"`
	Headers   []string      `long:"header" description:"Extra HTTP header, as Name:Value. Can be repeated."`

	Call struct {
		Args struct {
			Method string   `positional-arg-name:"method" description:"Wire name (eth_getBalance) or friendly name (GetBalance) of the method." required:"yes"`
			Params []string `positional-arg-name:"params" description:"Parameters, sent as JSON if they parse as JSON and as strings otherwise."`
		} `positional-args:"yes"`
	} `command:"call" description:"Send a single request and print its result."`

	Batch struct {
		Args struct {
			Requests []string `positional-arg-name:"method[:param,...]" description:"Requests of the batch." required:"yes"`
		} `positional-args:"yes"`
	} `command:"batch" description:"Send a batch of requests and print the responses in order."`

	Subscribe struct {
		Args struct {
			Kind   string   `positional-arg-name:"kind" description:"Subscription kind, such as newHeads or logs." required:"yes"`
			Params []string `positional-arg-name:"params" description:"Subscription parameters."`
		} `positional-args:"yes"`
		Buffer int `long:"buffer" description:"Number of events to buffer before dropping." default:"64" no-ini:"true"`
	} `command:"subscribe" description:"Subscribe over WebSocket and print events until interrupted."`

	Info struct {
	} `command:"info" description:"Identify the node and print its peering state."`

	Balance struct {
		Args struct {
			Address string `positional-arg-name:"address" required:"yes"`
			Block   string `positional-arg-name:"block" description:"Block number or tag. (default: latest)"`
		} `positional-args:"yes"`
	} `command:"balance" description:"Print the ether balance of an account."`
}

const batchUsage = `Examples:
* Query the chain ID and head block together:
  $ ethrpc batch eth_chainId eth_blockNumber

* Parameters follow the method after a colon, separated by commas:
  $ ethrpc batch "eth_getBalance:0x407d73d8a49eeb85d32cf465507dd71d507100c1,latest" net_version
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

func subcommand(ctx context.Context, cmd string, options Options) error {
	c, err := dialNode(ctx, options)
	if err != nil {
		return err
	}
	defer c.Close()

	out := os.Stdout
	switch cmd {
	case "call":
		return runCall(ctx, c, out, options.Call.Args.Method, options.Call.Args.Params)
	case "batch":
		return runBatch(ctx, c, out, options.Batch.Args.Requests)
	case "subscribe":
		return runSubscribe(ctx, c, out, options.Subscribe.Buffer, options.Subscribe.Args.Kind, options.Subscribe.Args.Params)
	case "info":
		return runInfo(ctx, c, out)
	case "balance":
		return runBalance(ctx, c, out, options.Balance.Args.Address, options.Balance.Args.Block)
	}
	return errors.Errorf("unknown command: %s", cmd)
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true

	configPath, err := loadConfig(parser, os.Args[1:])
	if err != nil {
		exit(1, "failed to load config: %s\n", err)
	}

	_, err = parser.Parse()
	if err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "batch":
				exit(0, batchUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		sub := golog.New(logWriter, log.Debug)
		client.SetLogger(sub)
		msghandler.SetLogger(sub)
		ethnode.SetLogger(sub)
		ipc.SetLogger(sub)
		ws.SetLogger(sub)
	}
	if configPath != "" {
		logger.Infof("Loaded config: %s", configPath)
	}

	cmd := "info"
	if parser.Active != nil {
		cmd = parser.Active.Name
	}
	err = subcommand(context.Background(), cmd, options)
	if err == nil {
		return
	}

	if errors.Is(err, io.EOF) {
		exit(3, "Connection closed.\n")
	}

	exit(2, "%s failed: %s\n", cmd, explain(err))
}

// explain attaches advice to the errors that users commonly run into.
func explain(err error) error {
	var (
		explained  ErrExplain
		configErr  *transport.ConfigError
		connErr    *ws.ConnectionError
		initErr    *ipc.WorkerInitError
		poolErr    *ipc.PoolTimeoutError
		compatErr  *ethnode.IncompatibleError
		rpcErr     *jsonrpc2.ErrResponse
		timeoutErr interface{ Timeout() bool }
		netErr     net.Error
	)
	switch {
	case errors.As(err, &explained):
		return err
	case errors.As(err, &configErr):
		return ErrExplain{err, fmt.Sprintf(`Invalid connection settings (%s). Check the --endpoint and --transport flags and the config file.`, configErr.Field)}
	case errors.As(err, &connErr), errors.As(err, &initErr):
		return ErrExplain{err, `Could not connect to the node. Make sure it's running with the matching RPC API enabled.`}
	case errors.As(err, &poolErr):
		return ErrExplain{err, `All IPC sockets stayed busy. Try a larger --pool-size or --timeout.`}
	case errors.As(err, &compatErr):
		return ErrExplain{err, `The node does not expose the admin API. Enable it to see peering information.`}
	case errors.Is(err, client.ErrSubscriptionsUnsupported):
		return ErrExplain{err, `Subscriptions need a WebSocket endpoint, such as --endpoint=ws://localhost:8546`}
	case errors.As(err, &rpcErr):
		switch rpcErr.Code {
		case jsonrpc2.ErrCodeMethodNotFound:
			return ErrExplain{err, `The node does not support this method. Make sure the API that provides it is enabled.`}
		case jsonrpc2.ErrCodeInvalidParams:
			return ErrExplain{err, `The node rejected the parameters. Parameters that look like JSON are sent as JSON, quote them to send strings.`}
		}
	case errors.As(err, &timeoutErr) && timeoutErr.Timeout():
		return ErrExplain{err, `The node did not respond in time. Try again with a longer --timeout?`}
	case errors.As(err, &netErr):
		return ErrExplain{err, `Disconnected from the node unexpectedly. Could be a connectivity issue or the node is down. Try again?`}
	}
	return err
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}
