// Package config handles loading and validating sqlitekit tool configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SQLITEKIT_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Path)
package config
