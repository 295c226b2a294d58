// entry point to the HTTP API
package main

import (
	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/config"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/appServer"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}

	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logrus.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	appServer.NewServer(cfg)
}
