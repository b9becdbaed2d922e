// Package config handles loading and validating devicelink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Both binaries share one configuration layout. The server reads the server,
// database, mqtt, influxdb, metrics and logging sections; the client reads
// the client and logging sections.
//
// Security Considerations:
//   - Passphrases and broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/devicelinkd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ListenAddress())
package config
