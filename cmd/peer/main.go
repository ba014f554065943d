// Command peer runs a single blockchain peer node: it rendezvous through
// a hole-puncher, then mines and votes on blocks alongside whatever
// other peers it discovers (spec.md §6 CLI surface, console subcommand).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"udpchain/internal/config"
	"udpchain/internal/keys"
	"udpchain/internal/node"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logrus.SetFormatter(&logrus.TextFormatter{})

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: peer <console|genkey|pubkey> [flags]")
		return 2
	}

	switch args[0] {
	case "console":
		return runConsole(args[1:])
	case "genkey":
		return runGenkey(args[1:])
	case "pubkey":
		return runPubkey(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return 2
	}
}

func runConsole(args []string) int {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the peer's YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "console: -config PATH is required")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Error("failed to load config")
		return 1
	}

	n, err := node.New(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to build node")
		return 1
	}
	defer n.Close()

	logrus.WithField("addr", n.LocalAddr()).WithField("pubkey", n.PublicKeyHex()).Info("peer starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logrus.Info("shutdown signal received, stopping")
		cancel()
		n.Close()
	}()

	if err := n.Start(); err != nil {
		logrus.WithError(err).Error("failed to register with hole-puncher")
		return 1
	}

	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("node exited unexpectedly")
		return 1
	}
	return 0
}

func runGenkey(args []string) int {
	fs := flag.NewFlagSet("genkey", flag.ContinueOnError)
	publicPath := fs.String("public-out", "", "optional path to also write the public key (only together with -secret-out)")
	secretPath := fs.String("secret-out", "", "optional path to also write the secret key (only together with -public-out)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pair, err := keys.Generate()
	if err != nil {
		logrus.WithError(err).Error("failed to generate key pair")
		return 1
	}

	if *publicPath != "" && *secretPath != "" {
		if err := pair.WriteFiles(*publicPath, *secretPath); err != nil {
			logrus.WithError(err).Error("failed to write key files")
			return 1
		}
	}

	fmt.Println(pair.SecretHex())
	return 0
}

func runPubkey(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: peer pubkey <secret-hex>")
		return 2
	}

	secret, err := keys.DecodeKey(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pubkey: %v\n", err)
		return 2
	}

	public, err := keys.PublicFromSecret(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pubkey: %v\n", err)
		return 1
	}

	pair := keys.Pair{Public: public, Secret: secret}
	fmt.Println(pair.PublicHex())
	return 0
}
