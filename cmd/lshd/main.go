// Command lshd is the lsh job daemon: it loads its state from ~/.lsh,
// starts the scheduler/executor/IPC socket (and, if enabled, the HTTP
// control API), and runs until it receives SIGINT/SIGTERM or a
// stopDaemon/restartDaemon request over the IPC socket.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gwicho38/lsh-sub006/config"
	"github.com/gwicho38/lsh-sub006/internal/daemon"
	"github.com/gwicho38/lsh-sub006/l3"
)

var logger = l3.Get()

func loadConfig() daemon.Config {
	apiEnabled, _ := config.GetEnvAsBool("LSH_API_ENABLED", false)
	apiPort, _ := config.GetEnvAsInt("LSH_API_PORT", 7777)
	dangerous, _ := config.GetEnvAsBool("LSH_ALLOW_DANGEROUS_COMMANDS", false)
	forceHTTP, _ := config.GetEnvAsBool("LSH_FORCE_HTTP", false)

	if os.Getenv("LSH_PRODUCTION") == "true" {
		if dangerous {
			fmt.Fprintln(os.Stderr, "lshd: LSH_ALLOW_DANGEROUS_COMMANDS is rejected in production mode")
			os.Exit(2)
		}
		if forceHTTP {
			fmt.Fprintln(os.Stderr, "lshd: LSH_FORCE_HTTP is rejected in production mode")
			os.Exit(2)
		}
	}

	return daemon.Config{
		APIEnabled: apiEnabled,
		APIPort:    int16(apiPort),
		APIKey:     config.GetEnvAsString("LSH_API_KEY", ""),
	}
}

func main() {
	cfg := loadConfig()

	d, err := daemon.New(cfg)
	if err != nil {
		logger.ErrorF("lshd: failed to initialize: %v", err)
		os.Exit(1)
	}

	if err := d.Start(); err != nil {
		logger.ErrorF("lshd: failed to start: %v", err)
		os.Exit(1)
	}
	logger.InfoF("lshd: started (api=%v)", cfg.APIEnabled)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.InfoF("lshd: signal received, shutting down")
	if err := d.Stop(); err != nil {
		logger.ErrorF("lshd: shutdown error: %v", err)
		os.Exit(1)
	}
}
