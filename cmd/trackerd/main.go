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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/js-labs/trackerd/internal/config"
	"github.com/js-labs/trackerd/internal/server"
	"github.com/js-labs/trackerd/internal/session"
	"github.com/js-labs/trackerd/internal/stats"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	var storageDir string
	var port int
	var logLevel string
	var configFile string
	var metricsPort int

	flag.StringVar(&storageDir, "s", "", "Storage directory (required, must exist)")
	flag.IntVar(&port, "p", config.DefaultPort, "TCP/UDP listen port")
	flag.StringVar(&logLevel, "loglevel", "info", "Log level: debug, info, warning, error")
	flag.StringVar(&configFile, "config", "", "Path to a YAML file overlaying the tunable constants")
	flag.IntVar(&metricsPort, "metricsport", 9090, "Port to serve Prometheus metrics on")
	flag.Parse()

	if flag.NArg() != 0 {
		usage()
	}
	if storageDir == "" {
		usage()
	}
	info, err := os.Stat(storageDir)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "storage directory %q does not exist\n", storageDir)
		usage()
	}
	if port <= 0 || port > 65535 {
		usage()
	}

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("unrecognized log level: %v", logLevel)
	}

	tunable, err := config.LoadTunableOverlay(configFile)
	if err != nil {
		log.Fatal(err)
	}
	cfg := config.Config{
		StorageDir: storageDir,
		Port:       port,
		LogLevel:   logLevel,
		Tunable:    tunable,
	}

	st := stats.New()
	go st.Start(metricsPort)

	srv, err := server.New(server.Options{
		StorageDir:        cfg.StorageDir,
		LinkTTL:           cfg.Tunable.LinkTTL,
		RateLimitInterval: cfg.Tunable.RateLimitInterval,
		Stats:             st,
	})
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("trackerd listening on port %d with %d known device(s)", cfg.Port, srv.RegistrySize())

	tcpLn, err := session.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Fatal(err)
	}
	udpConn, err := session.ListenPacket("udp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Fatal(err)
	}

	var eg errgroup.Group
	eg.Go(func() error { return session.ServeTCP(tcpLn, srv, st, cfg.Tunable.SessionIdleTimeout) })
	eg.Go(func() error { return session.ServeUDP(udpConn, srv) })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	_ = tcpLn.Close()
	_ = udpConn.Close()
	srv.Stop()

	if err := eg.Wait(); err != nil {
		log.Errorf("listener goroutine exited with error: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stdout, "usage: trackerd -s <storage-dir> [-p <port>] [-loglevel <level>] [-config <file>]")
	os.Exit(1)
}
