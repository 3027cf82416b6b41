// Package config loads the settings of the ws command line tool.
//
// Settings are layered, later sources overriding earlier ones:
//   - Built-in defaults (ws.DefaultConfig, info logging)
//   - A configuration file, either JSON (.json) or dotenv (.env)
//   - Environment variables with the WS_ prefix
//   - Command line flags that were explicitly set
//
// Nested keys are separated by dots in files and by a double underscore in
// environment variables:
//
//	{"log_level": "debug", "client": {"timeout": "5s", "max_connections": 4}}
//
//	WS_LOG_LEVEL=debug WS_CLIENT__TIMEOUT=5s ws get https://example.com
//
// Basic Usage:
//
//	cfg, err := config.Load(config.LoadOptions{
//	    FileName: "ws.json",
//	    Flags:    cmd.Flags(),
//	    FlagMap:  map[string]string{"timeout": "client.timeout"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := ws.NewClient(ws.WithConfig(cfg.Client))
//
// Configuration Validation:
//
// Load validates the merged result. Validate can also be called directly
// and returns every problem found:
//
//	for _, err := range config.Validate(&cfg) {
//	    log.Printf("Validation error: %s", err)
//	}
package config
