package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/form3tech-oss/pact-consumer/internal/app/configuration"
	log "github.com/sirupsen/logrus"
)

func main() {
	config, err := configuration.NewFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	if err := configuration.StartServers(config); err != nil {
		configuration.ShutdownAllServers()
		log.Fatal(err)
	}

	var watcher *configuration.Watcher
	if config.Watch {
		watcher, err = configuration.WatchPactFiles(configuration.PactFiles())
		if err != nil {
			configuration.ShutdownAllServers()
			log.Fatal(err)
		}
	}

	adminServer := configuration.ServeAdminAPI(config)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	if watcher != nil {
		watcher.Close()
	}
	if err := adminServer.Close(); err != nil {
		log.Error(err)
	}

	configuration.ShutdownAllServers()
}
