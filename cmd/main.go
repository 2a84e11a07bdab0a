package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"thordata-sdk/pkg/checker"
	"thordata-sdk/pkg/database"
	"thordata-sdk/pkg/proxy"
)

var (
	debugFlag bool
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "thordata",
	Short: "Thordata proxy transport toolkit",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var proxyURLCmd = &cobra.Command{
	Use:   "proxy-url",
	Short: "Build the proxy username, URL and endpoint for a targeting configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := proxyConfigFromFlags(cmd)
		if err != nil {
			logger.Error("Invalid proxy configuration", "error", err)
			os.Exit(1)
		}

		fmt.Println("username: ", cfg.BuildUsername())
		fmt.Println("url:      ", cfg.BuildProxyURL())
		fmt.Println("endpoint: ", cfg.BuildProxyEndpoint())
		fmt.Println("basic:    ", cfg.BuildBasicAuth())
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [target]",
	Short: "Probe the configured proxy endpoint over each protocol",
	Long: `Probe the configured proxy endpoint by fetching a target URL through it
over each selected protocol. The default target echoes the exit IP.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := proxyConfigFromFlags(cmd)
		if err != nil {
			logger.Error("Invalid proxy configuration", "error", err)
			os.Exit(1)
		}

		target := checker.DefaultTarget
		if len(args) > 0 {
			target = args[0]
		}

		protocolsFlag, _ := cmd.Flags().GetString("protocols")
		protocols := strings.Split(protocolsFlag, ",")
		for i := range protocols {
			protocols[i] = strings.TrimSpace(protocols[i])
		}

		c := checker.New(logger, checker.Options{})
		results := c.Check(context.Background(), cfg, protocols, target)

		failed := 0
		for _, r := range results {
			if r.Success {
				logger.Info("Probe succeeded", "protocol", r.Protocol, "status", r.StatusCode, "durationMs", r.DurationMs)
			} else {
				failed++
				logger.Error("Probe failed", "protocol", r.Protocol, "error", r.ErrorMsg, "durationMs", r.DurationMs)
			}
		}

		store, _ := cmd.Flags().GetBool("store")
		if store {
			db, err := initDB()
			if err != nil {
				logger.Error("Error initializing database", "error", err)
				os.Exit(1)
			}
			defer db.Close()

			if err := db.SaveChecks(context.Background(), results); err != nil {
				logger.Error("Error saving check results", "error", err)
				os.Exit(1)
			}
			logger.Info("Check results saved", "count", len(results))
		}

		if failed > 0 {
			os.Exit(1)
		}
	},
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database schema",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("Database schema initialized")
	},
}

func proxyConfigFromFlags(cmd *cobra.Command) (*proxy.Config, error) {
	f := cmd.Flags()
	product, _ := f.GetString("product")
	host, _ := f.GetString("host")
	port, _ := f.GetInt("port")
	protocol, _ := f.GetString("protocol")
	continent, _ := f.GetString("continent")
	country, _ := f.GetString("country")
	state, _ := f.GetString("state")
	city, _ := f.GetString("city")
	asn, _ := f.GetString("asn")
	sessionID, _ := f.GetString("session-id")
	sessionDuration, _ := f.GetInt("session-duration")
	sticky, _ := f.GetInt("sticky")

	cfg := proxy.Config{
		Username:        viper.GetString("proxy.username"),
		Password:        viper.GetString("proxy.password"),
		Product:         proxy.Product(product),
		Host:            host,
		Port:            port,
		Protocol:        protocol,
		Continent:       continent,
		Country:         country,
		State:           state,
		City:            city,
		ASN:             asn,
		SessionID:       sessionID,
		SessionDuration: sessionDuration,
	}

	if sticky > 0 {
		return proxy.NewStickySession(cfg, sticky)
	}
	return proxy.NewConfig(cfg)
}

func addProxyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("product", "residential", "Proxy product: residential, mobile, datacenter or isp")
	f.String("host", "", "Override the gateway host")
	f.Int("port", 0, "Override the gateway port")
	f.String("protocol", "", "Proxy protocol: http, https, socks5 or socks5h")
	f.String("continent", "", "Continent code (af, an, as, eu, na, oc, sa)")
	f.String("country", "", "Two-letter country code")
	f.String("state", "", "State targeting")
	f.String("city", "", "City targeting")
	f.String("asn", "", "ASN targeting (requires --country)")
	f.String("session-id", "", "Sticky session id")
	f.Int("session-duration", 0, "Session duration in minutes (requires --session-id)")
	f.Int("sticky", 0, "Create a sticky session of this many minutes with a generated id")
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	addProxyFlags(proxyURLCmd)
	addProxyFlags(checkCmd)
	checkCmd.Flags().String("protocols", "http,https,socks5", "Comma-separated protocols to probe")
	checkCmd.Flags().Bool("store", false, "Store check results in the database")

	rootCmd.AddCommand(proxyURLCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(initDBCmd)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.thordata")
	viper.AddConfigPath("/etc/thordata/")

	viper.SetEnvPrefix("THORDATA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file is optional; env vars cover everything it can hold.
	_ = viper.ReadInConfig()
}

func initDB() (*database.DB, error) {
	db, err := database.NewDB()
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	err = db.InitSchema(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
