package main

import (
	"log"
	"os"

	"github.com/avstrong/staybook/internal/app"
	"github.com/avstrong/staybook/internal/config"
	"github.com/avstrong/staybook/internal/logger"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(os.Stdout, conf.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	var exitCode int

	if err := app.Run(l, conf); err != nil {
		l.LogErrorf("Failed to run app: %v", err.Error())

		exitCode = 1
	}

	os.Exit(exitCode)
}
