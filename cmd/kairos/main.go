package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wudi/kairos/internal/config"
	"github.com/wudi/kairos/internal/gateway"
	"github.com/wudi/kairos/internal/obsv"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gateway.json", "Path to configuration file")
	addr := flag.String("addr", ":8080", "Address to listen on")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	watch := flag.Bool("watch", true, "Reload configuration when the file on disk changes")
	trustedProxies := flag.String("trusted-proxies", "", "Comma-separated CIDRs trusted to supply X-Forwarded-For/X-Real-IP")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logOutput := flag.String("log-output", "stdout", "Log output: stdout, stderr, or a file path")
	flag.Parse()

	if *showVersion {
		fmt.Printf("kairos %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	logger, closer, err := obsv.NewLogger(obsv.LogConfig{Level: *logLevel, Output: *logOutput})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	obsv.SetGlobal(logger)
	if closer != nil {
		defer closer.Close()
	}
	defer obsv.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *validateOnly {
		fmt.Println("configuration is valid")
		os.Exit(0)
	}

	obsv.Info("starting kairos",
		zap.String("version", version),
		zap.String("config_path", *configPath),
		zap.Int("routes", len(cfg.Routers)),
	)

	store := config.NewStore(cfg)
	store.SetSourcePath(*configPath)

	var proxyCIDRs []string
	if *trustedProxies != "" {
		proxyCIDRs = strings.Split(*trustedProxies, ",")
	}

	srv, err := gateway.NewServer(gateway.ServerConfig{
		Addr:              *addr,
		TrustedProxyCIDRs: proxyCIDRs,
		RealIPHeaders:     []string{"X-Forwarded-For", "X-Real-IP"},
	}, store, obsv.NewMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		log.Fatalf("failed to build gateway: %v", err)
	}

	if *watch {
		if err := srv.WatchConfigFile(*configPath); err != nil {
			log.Fatalf("failed to watch config file: %v", err)
		}
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
