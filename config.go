package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/OpenPeeDeeP/xdg"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/vipnode/ethrpc/client"
	"github.com/vipnode/ethrpc/transport"
)

const configName = "config.ini"

func findGethDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		if usr, err := user.Current(); err == nil {
			home = usr.HomeDir
		}
	}
	if home == "" {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Ethereum")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Ethereum")
	default:
		return filepath.Join(home, ".ethereum")
	}
}

// defaultConfigPath returns the path of the config file in the XDG config
// dir, which may not exist.
func defaultConfigPath() string {
	return filepath.Join(xdg.New("vipnode", "ethrpc").ConfigHome(), configName)
}

// loadConfig fills the options of parser from the INI config file named by
// --config in args, or from the default config file if there is one. Flags
// parsed afterwards override the config. It returns the path that was
// loaded, if any.
//
// The options go in the [Application Options] section:
//
//	[Application Options]
//	endpoint = ws://localhost:8546
//	timeout = 10s
func loadConfig(parser *flags.Parser, args []string) (string, error) {
	var pre struct {
		Config string `long:"config"`
	}
	if _, err := flags.NewParser(&pre, flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return "", err
	}

	path := pre.Config
	if path == "" {
		path = defaultConfigPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return "", nil
		}
	}
	if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
		return "", errors.Wrapf(err, "failed to parse %s", path)
	}
	return path, nil
}

// endpointOrDefault returns the configured endpoint, or the IPC socket of a
// local Geth.
func endpointOrDefault(options Options) string {
	if options.Endpoint != "" {
		return options.Endpoint
	}
	dir := findGethDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "geth.ipc")
}

// transportConfig translates the options into the transport kind and its
// configuration.
func transportConfig(options Options) (transport.Kind, transport.Config, error) {
	endpoint := endpointOrDefault(options)
	kind := transport.KindFromEndpoint(endpoint)
	if options.Transport != "" {
		kind = transport.ParseKind(options.Transport)
	}

	cfg := transport.Config{
		Timeout:  options.Timeout,
		Dialer:   options.Dialer,
		PoolSize: options.PoolSize,
	}
	switch kind {
	case transport.HTTP, transport.WebSocket:
		cfg.EndpointURL = endpoint
	case transport.IPC:
		cfg.SocketPath = endpoint
		if u, err := url.Parse(endpoint); err == nil && u.Scheme == "unix" {
			cfg.SocketPath = u.Path
		}
	default:
		return kind, cfg, &transport.ConfigError{
			Field:  "Transport",
			Reason: fmt.Sprintf("can't tell the transport of %q, set one of http, ws or ipc", endpoint),
		}
	}

	if len(options.Headers) > 0 {
		cfg.Headers = make(map[string]string, len(options.Headers))
		for _, h := range options.Headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return kind, cfg, &transport.ConfigError{Field: "Headers", Reason: fmt.Sprintf("invalid header %q, want Name:Value", h)}
			}
			cfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	return kind, cfg, nil
}

func dialNode(ctx context.Context, options Options) (*client.Client, error) {
	kind, cfg, err := transportConfig(options)
	if err != nil {
		return nil, err
	}
	endpoint := endpointOrDefault(options)
	logger.Infof("Connecting to Ethereum node: %s (%s)", endpoint, kind)
	c, err := client.New(ctx, kind, cfg)
	if err != nil {
		var configErr *transport.ConfigError
		if errors.As(err, &configErr) {
			return nil, err
		}
		return nil, ErrExplain{
			err,
			fmt.Sprintf(`Could not connect to the Ethereum node (such as Geth or Parity). Tried "%s". Make sure your node is running with RPC enabled. You can specify the endpoint with the --endpoint="..." flag.`, endpoint),
		}
	}
	return c, nil
}
