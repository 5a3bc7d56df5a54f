package main

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/Epistemic-Technology/production-breakdown/internal/app"
	"github.com/Epistemic-Technology/production-breakdown/internal/config"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/server"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol
	if cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize: %v", err)
	}
	defer a.Close()

	log.Info("Starting production-breakdown MCP server")

	srv := server.CreateMCPServer(server.MCPDeps{
		Service:  a.Service,
		Uploads:  a.Uploads,
		Exporter: a.Exporter,
		Zotero:   a.ZoteroCredentials(),
		Sessions: a.SessionLoader(),
	}, log)
	if err := srv.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatal("Server failed: %v", err)
	}
}
