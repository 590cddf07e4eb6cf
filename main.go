package main

import (
	"flag"
	"log"
	"os"

	"github.com/Techyishu/writerly/server"
	"github.com/Techyishu/writerly/settings"
)

func main() {
	configPath := flag.String("config", "", "config file path (yaml, json or toml). Environment variables override it")
	flag.Parse()

	logError := log.New(os.Stderr, "ERROR: ", log.Ltime)

	cfg, err := settings.Load(*configPath)
	if err != nil {
		logError.Fatalf("Invalid configuration: %s", err)
	}
	if err = server.RunServer(cfg); err != nil {
		logError.Fatalf("Server failed: %s", err)
	}
}
