package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	bayeux "github.com/silentsound/baiocas"
)

type config struct {
	Hostname    string
	Port        uint
	EventBuffer uint
	Protocol    string
	Path        string
	LogLevel    string
}

func main() {
	logger := logrus.New()
	if err := run(os.Args[1:], logger); err != nil {
		logger.WithError(err).Fatal("testutil exiting")
	}
}

func run(args []string, logger *logrus.Logger) error {
	var cfg config
	flags := flag.NewFlagSet("testutil", flag.ContinueOnError)
	flags.StringVar(&cfg.Protocol, "protocol", "https", "scheme used to reach the Bayeux endpoint")
	flags.UintVar(&cfg.Port, "port", 443, "port used to reach the Bayeux endpoint")
	flags.UintVar(&cfg.EventBuffer, "buffer", 64, "capacity of the channel buffering received messages")
	flags.StringVar(&cfg.Hostname, "hostname", "localhost", "hostname of the Bayeux endpoint")
	flags.StringVar(&cfg.Path, "path", "/cometd", "request path of the Bayeux endpoint")
	flags.StringVar(&cfg.LogLevel, "loglevel", "info", "logrus level name (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing -loglevel: %w", err)
	}
	logger.SetLevel(level)

	channels := flags.Args()
	if len(channels) == 0 {
		return fmt.Errorf("at least one channel name is required, e.g. %s /foo/bar", flags.Name())
	}

	endpoint := url.URL{Scheme: cfg.Protocol, Host: fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port), Path: cfg.Path}
	client, err := bayeux.NewClient(endpoint.String(), bayeux.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("building client for %s: %w", endpoint.String(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := client.Start(ctx)
	received := make(chan []bayeux.Message, cfg.EventBuffer)
	for _, name := range channels {
		logger.WithField("channel", name).Debug("subscribing")
		client.Subscribe(bayeux.ChannelID(name), received)
	}

	for {
		select {
		case err, open := <-errc:
			if !open {
				return nil
			}
			logger.WithError(err).Error("bayeux client reported an error")
		case batch := <-received:
			for _, m := range batch {
				logger.WithFields(logrus.Fields{
					"bayeux.channel": m.Channel(),
					"bayeux.data":    m.Data(),
				}).Info("message received")
			}
		case <-ctx.Done():
			return client.Disconnect(context.Background())
		}
	}
}
