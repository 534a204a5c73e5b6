package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alpenlabs/bridged/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

// envReplacer replaces `-` to `_`.
// This is used to map flag like `--my-param` to environment variables like `MY_PARAM`.
var envReplacer = strings.NewReplacer("-", "_")

func init() {
	viper.SetEnvPrefix("BRIDGED")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
}

func main() {
	app := &cli.App{
		Name:  "bridged",
		Usage: "bridge custody subprotocol daemon",
		Flags: []cli.Flag{
			config.Datadir,
			config.LogLevel,
			config.DbType,
			config.EsploraURL,
			config.PollInterval,
			config.StartHeight,
			config.Denomination,
			config.OperatorFee,
			config.AssignmentDuration,
			config.Magic,
			config.DepositVout,
			config.DescriptorLen,
			config.OperatorPubkeys,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.LoadConfig(c)
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	log.Infof("bridged config: %s", cfg)

	svc, err := cfg.AppService()
	if err != nil {
		return fmt.Errorf("failed to create service: %s", err)
	}

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start service: %s", err)
	}

	log.RegisterExitHandler(svc.Stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(
		sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, os.Interrupt,
	)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}
