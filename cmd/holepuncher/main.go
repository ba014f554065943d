// Command holepuncher runs the stateless rendezvous relay (C11): it has
// no subcommands, since the relay has exactly one job (spec.md §6.1).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"udpchain/internal/holepuncher"
	"udpchain/internal/keys"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logrus.SetFormatter(&logrus.TextFormatter{})

	fs := flag.NewFlagSet("holepuncher", flag.ContinueOnError)
	port := fs.Int("port", 50001, "UDP port to bind")
	secretHex := fs.String("secret-key", "", "hex-encoded secret key (a fresh key pair is generated if empty)")
	logLevel := fs.String("log-level", "info", "logrus level name")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "holepuncher: invalid -log-level %q: %v\n", *logLevel, err)
		return 2
	}
	logrus.SetLevel(level)

	pair, err := resolveKeyPair(*secretHex)
	if err != nil {
		logrus.WithError(err).Error("failed to resolve key pair")
		return 1
	}

	relay, err := holepuncher.New(*port, pair)
	if err != nil {
		logrus.WithError(err).Error("failed to bind relay")
		return 1
	}
	defer relay.Close()

	logrus.WithField("addr", relay.LocalAddr()).WithField("pubkey", relay.PublicKeyHex()).Info("hole-puncher relay starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logrus.Info("shutdown signal received, stopping")
		cancel()
		relay.Close()
	}()

	if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("relay exited unexpectedly")
		return 1
	}
	return 0
}

func resolveKeyPair(secretHex string) (keys.Pair, error) {
	if secretHex == "" {
		return keys.Generate()
	}
	secret, err := keys.DecodeKey(secretHex)
	if err != nil {
		return keys.Pair{}, err
	}
	public, err := keys.PublicFromSecret(secret)
	if err != nil {
		return keys.Pair{}, err
	}
	return keys.Pair{Public: public, Secret: secret}, nil
}
