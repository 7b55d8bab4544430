package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Travis-Britz/ddns6"
)

// envPrefix namespaces environment overrides, e.g. DDNS6_CONFIG or DDNS6_KEY_FILE.
const envPrefix = "DDNS6"

const (
	resolverLocal = "local"
	resolverWeb   = "web"
	resolverAuto  = "auto"

	httpTimeout = 30 * time.Second
)

var logger = zap.NewNop()

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ddnscf",
		Short:        "Keep a Cloudflare AAAA record pointed at this host's IPv6 address",
		SilenceUsage: true,
		Long: `ddnscf picks the most stable global IPv6 address on this host
and keeps one Cloudflare AAAA record pointed at it.

Settings and the last known address live in a JSON file under the user config directory.
The Cloudflare API token is kept in the OS keyring unless --key-file is given.`,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setupLogger(viper.GetBool("verbose"))
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to the settings file (default is under the user config directory)")
	rootCmd.PersistentFlags().String("key-file", "", "Read the API token from this file instead of the OS keyring")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("resolver", resolverLocal, "How to find the address to publish: local, web, or auto (local, then web services when no global address is found)")
	rootCmd.PersistentFlags().StringSlice("web-service", nil, "IP lookup service URL for the web and auto resolvers (repeatable; defaults to a built-in list)")
	for _, name := range []string{"config", "key-file", "verbose", "resolver", "web-service"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", name, err))
		}
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPushCmd())
	rootCmd.AddCommand(newLookupCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newConfigureCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newServiceCmd())
	return rootCmd
}

func setupLogger(verbose bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		l, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	logger = l
	return nil
}

// libraryLogger returns the logger handed to the ddns package.
// The library is only chatty with -v.
func libraryLogger() *log.Logger {
	if !viper.GetBool("verbose") {
		return nil
	}
	return zap.NewStdLog(logger.Named("ddns"))
}

func openStore() (*ddns.FileStore, error) {
	path := viper.GetString("config")
	if path == "" {
		p, err := ddns.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return ddns.NewFileStore(path), nil
}

func tokenStore() ddns.TokenStore {
	if path := viper.GetString("key-file"); path != "" {
		return ddns.KeyFile(path)
	}
	return ddns.Keyring()
}

// newResolver builds the resolver selected by --resolver.
func newResolver() (ddns.Resolver, error) {
	services := viper.GetStringSlice("web-service")
	if len(services) == 0 {
		services = ddns.DefaultWebServices
	}
	switch mode := viper.GetString("resolver"); mode {
	case resolverLocal, "":
		return &ddns.LocalResolver{}, nil
	case resolverWeb:
		return ddns.WebResolver(services...)
	case resolverAuto:
		web, err := ddns.WebResolver(services...)
		if err != nil {
			return nil, err
		}
		return ddns.FallbackResolver(&ddns.LocalResolver{}, web), nil
	default:
		return nil, fmt.Errorf("unknown resolver %q; use %s, %s or %s", mode, resolverLocal, resolverWeb, resolverAuto)
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// newController builds a controller over the settings file with the Cloudflare provider.
// A nil resolver means the one selected by --resolver.
func newController(resolver ddns.Resolver) (*ddns.Controller, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	logger.Debug("using settings file", zap.String("path", store.Path()))
	if resolver == nil {
		if resolver, err = newResolver(); err != nil {
			return nil, err
		}
	}
	c, err := ddns.New(store,
		ddns.UsingCloudflare(),
		ddns.UsingResolver(resolver),
		ddns.UsingTokenStore(tokenStore()),
		ddns.WithLogger(libraryLogger()),
		ddns.UsingHTTPClient(httpClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating controller: %w", err)
	}
	return c, nil
}
