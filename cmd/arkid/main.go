package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/arkimet/dsengine/arkidrpc"
	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/dataset"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  arkid -path <dataset-dir>\n")
	os.Exit(1)
}

func main() {
	var (
		dsPath = flag.String("path", "", "path to dataset directory (must contain a config file)")
		addr   = flag.String("addr", ":7337", "RPC listen address")
	)
	flag.Parse()

	if *dsPath == "" {
		usage()
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfgFile, err := os.Open(filepath.Join(*dsPath, "config"))
	if err != nil {
		log.Fatalf("could not open dataset config: %v", err)
	}
	cfg, err := config.Parse(cfgFile)
	cfgFile.Close()
	if err != nil {
		log.Fatalf("could not parse dataset config: %v", err)
	}

	w, err := dataset.OpenWriter(cfg, *dsPath, log)
	if err != nil {
		log.Fatalf("could not open dataset writer: %v", err)
	}
	r, err := dataset.OpenReader(cfg, *dsPath, log)
	if err != nil {
		log.Fatalf("could not open dataset reader: %v", err)
	}

	listenAddr, cleanup, err := arkidrpc.StartRPC(w, r, *addr)
	if err != nil {
		log.Fatalf("could not start RPC server: %v", err)
	}
	log.Infof("RPC server listening on %s for dataset %q", listenAddr, cfg.Name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received %v, shutting down", sig)
	cleanup()
}
