// Command tsengine runs a portfolio of moving-average positions over CSV
// bar files and serves the engine's status while it runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kbukum/tsengine/config"
	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/version"
)

func main() {
	configFile := flag.String("config", "", "path to config.yml (searched for when empty)")
	envFile := flag.String("env", "", "path to a .env file (searched for when empty)")
	showVersion := flag.Bool("version", false, "print the build version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(serviceName, version.Get())
		return
	}

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}

	cfg, err := config.Load[AppConfig](serviceName, opts...)
	if err != nil {
		logger.Error("loading configuration", logger.ErrorFields("load_config", err))
		os.Exit(1)
	}

	a, err := newApplication(cfg)
	if err != nil {
		logger.Error("creating application", logger.ErrorFields("new_app", err))
		os.Exit(1)
	}
	if err := a.run(context.Background()); err != nil {
		a.app.Logger.Error("run failed", logger.ErrorFields("run", err))
		os.Exit(1)
	}
}
