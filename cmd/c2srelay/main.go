/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meshrelay/rtprelay/c2s"
	"github.com/meshrelay/rtprelay/stats"
)

var (
	listenAddrFlag string
	uplinkAddrFlag string
	workersFlag    int
	maxPendingFlag int
	tlsCertFlag    string
	tlsKeyFlag     string
	configFileFlag string
	monitoringFlag string
	passwordFlag   string
	logLevelFlag   string
)

func bindRelayFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenAddrFlag, "listen", "", "address to accept local clients on, defaults to c2s's built-in default")
	cmd.Flags().StringVar(&uplinkAddrFlag, "uplink", "", "address of the message server to relay to")
	cmd.Flags().IntVar(&workersFlag, "workers", 0, "number of reactor workers, 0 keeps the default")
	cmd.Flags().IntVar(&maxPendingFlag, "max-pending", 0, "task queue backpressure cap, 0 keeps the default")
	cmd.Flags().StringVar(&tlsCertFlag, "tls-cert", "", "TLS certificate for local SSL_EX sessions, empty disables TLS")
	cmd.Flags().StringVar(&tlsKeyFlag, "tls-key", "", "TLS key matching --tls-cert")
	cmd.Flags().StringVar(&configFileFlag, "config", "", "path to a YAML dynamic config (redlines, heartbeat, allowed subnets)")
	cmd.Flags().StringVar(&monitoringFlag, "monitoring-addr", ":8901", "host:port to serve /stats.json and /metrics on")
	cmd.Flags().StringVar(&passwordFlag, "password", "", "shared handshake password, required")
	cmd.Flags().StringVar(&logLevelFlag, "loglevel", "warning", "log level: debug, info, warning, error")
}

func applyStaticFlags(c *c2s.StaticConfig) {
	if listenAddrFlag != "" {
		c.ListenAddr = listenAddrFlag
	}
	if uplinkAddrFlag != "" {
		c.UplinkAddr = uplinkAddrFlag
	}
	if workersFlag != 0 {
		c.Workers = workersFlag
	}
	if maxPendingFlag != 0 {
		c.MaxPendingCount = maxPendingFlag
	}
	c.TLSCertPath = tlsCertFlag
	c.TLSKeyPath = tlsKeyFlag
}

func configureLogLevel() {
	switch logLevelFlag {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("unrecognized log level: %v", logLevelFlag)
	}
}

func listen(static c2s.StaticConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", static.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", static.ListenAddr, err)
	}
	if static.TLSCertPath == "" {
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(static.TLSCertPath, static.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading TLS cert/key: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}}), nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the C2S relay",
	Run: func(_ *cobra.Command, _ []string) {
		configureLogLevel()
		if passwordFlag == "" {
			log.Fatal("--password is required")
		}

		static := c2s.DefaultStaticConfig()
		applyStaticFlags(&static)
		if static.UplinkAddr == "" {
			log.Fatal("--uplink is required")
		}

		dynamic := c2s.DefaultDynamicConfig()
		if configFileFlag != "" {
			d, err := c2s.ReadDynamicConfig(configFileFlag)
			if err != nil {
				log.Fatal(err)
			}
			dynamic = d
		}

		st := stats.New()
		relay := c2s.New(static, dynamic, []byte(passwordFlag), st)

		if monitoringFlag != "" {
			mux := http.NewServeMux()
			mux.Handle("/stats.json", stats.JSONHandler(st))
			mux.Handle("/metrics", stats.NewPromExporter(st, "c2srelay").Handler())
			go func() {
				if err := http.ListenAndServe(monitoringFlag, mux); err != nil {
					log.Warningf("monitoring server stopped: %v", err)
				}
			}()
		}

		ln, err := listen(static)
		if err != nil {
			log.Fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := relay.Start(ctx, ln); err != nil && ctx.Err() == nil {
			log.Fatalf("relay run failed: %v", err)
		}
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "config-check",
	Short: "Validate a dynamic config file without starting the relay",
	Run: func(_ *cobra.Command, _ []string) {
		if configFileFlag == "" {
			log.Fatal("--config is required")
		}
		if _, err := c2s.ReadDynamicConfig(configFileFlag); err != nil {
			log.Fatal(err)
		}
		fmt.Println("config OK")
	},
}

// version is set at build time via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the c2srelay version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version)
	},
}

var rootCmd = &cobra.Command{
	Use:   "c2srelay",
	Short: "Client-to-server relay fronting a message server",
}

func init() {
	bindRelayFlags(runCmd)
	configCheckCmd.Flags().StringVar(&configFileFlag, "config", "", "path to a YAML dynamic config")
	rootCmd.AddCommand(runCmd, configCheckCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
