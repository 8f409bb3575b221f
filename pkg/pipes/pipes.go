// Package pipes provides the public API for embedding the tool server.
// This is the stable API for external consumers.
package pipes

import (
	"github.com/Dmi3yy/webui-pipes/internal/config"
	"github.com/Dmi3yy/webui-pipes/internal/runtime"
)

// Service runs the tool server. See internal/runtime.Service.
type Service = runtime.Service

// Option is a functional option for configuring a Service.
type Option = runtime.Option

// Config is the service configuration.
type Config = config.Config

// New creates a Service with the given options.
// Example:
//
//	svc, err := pipes.New(
//	    pipes.WithConfigFile("config.yaml"),
//	    pipes.WithSQLite("./data/pipes.db"),
//	)
var New = runtime.New

// LoadConfig reads a config file plus the environment.
var LoadConfig = config.Load

var (
	// Config sources
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile

	// Storage
	WithSQLite      = runtime.WithSQLite
	WithMemoryStore = runtime.WithMemoryStore
	WithStore       = runtime.WithStore

	// Advanced options
	WithLogger   = runtime.WithLogger
	WithListener = runtime.WithListener
)
