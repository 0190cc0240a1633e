package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goburrow/modbus"
	"github.com/heatwise-se/controller/pkg/api/v1/config"
	"github.com/heatwise-se/controller/pkg/app"
	"github.com/heatwise-se/controller/pkg/heatpump"
	"github.com/heatwise-se/controller/pkg/history"
	"github.com/heatwise-se/controller/pkg/metrics"
	"github.com/heatwise-se/controller/pkg/modbusclient"
	"github.com/heatwise-se/controller/pkg/store"
	"github.com/heatwise-se/controller/pkg/version"
	"github.com/koding/multiconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()
	err := Run(ctx)
	if err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func Run(ctx context.Context) error {
	config := &config.CliConfig{}
	err := multiconfig.New().Load(config)
	if err != nil {
		return err
	}
	err = config.Validate()
	if err != nil {
		return err
	}
	lvl, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("error setting logrus loglevel: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.Debug("starting version: ", version.Version)

	var s store.Store
	if config.RedisAddress != "" {
		rs, err := store.NewRedisStore(config.RedisAddress, config.RedisPassword, config.RedisDB, 0)
		if err != nil {
			return err
		}
		defer rs.Close()
		s = rs
	} else {
		logrus.Warn("no redis address, learned factor will not survive restarts")
		s = store.NewMemoryStore()
	}

	querier := &history.InfluxQuerier{
		URL:      config.InfluxURL,
		Database: config.InfluxDatabase,
	}

	app := app.New(config, s, querier, metrics.New(prometheus.DefaultRegisterer))

	if config.PumpAddress != "" {
		handler := modbus.NewTCPClientHandler(config.PumpAddress)
		handler.Timeout = 10 * time.Second
		client := modbusclient.New(modbus.NewClient(handler), handler.Close)
		app.SetPump(heatpump.New(client, config.PumpReadonly))
	}

	err = app.Start(ctx)
	if err != nil {
		return err
	}

	app.Wait()
	return nil
}
