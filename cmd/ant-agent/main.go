// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/pheromon/antagent/lib/config"
	"github.com/pheromon/antagent/lib/process"
	"github.com/pheromon/antagent/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		statusListen string
		showVersion  bool
		keygenPath   string
		sealTo       []string
	)

	flagSet := pflag.NewFlagSet("ant-agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the agent YAML file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&statusListen, "status-listen", "", "loopback address for the status endpoint, overrides status.listen")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.StringVar(&keygenPath, "keygen", "", "write a new age key to this path, print its recipient, and exit")
	flagSet.StringSliceVar(&sealTo, "seal-to", nil, "seal a broker token from stdin to these age recipients and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	switch {
	case showVersion:
		fmt.Printf("ant-agent %s\n", version.Full())
		return nil
	case keygenPath != "":
		return runKeygen(keygenPath, os.Stdout)
	case len(sealTo) > 0:
		return runSeal(sealTo, os.Stdout)
	}

	var (
		agentConfig *config.Config
		err         error
	)
	if configPath != "" {
		agentConfig, err = config.LoadFile(configPath)
	} else {
		agentConfig, err = config.Load()
	}
	if err != nil {
		return err
	}
	if statusListen != "" {
		agentConfig.Status.Listen = statusListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runAgent(ctx, agentConfig, os.Stderr)
}
