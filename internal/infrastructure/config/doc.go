// Package config handles loading and validating roomgate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ROOMGATE_* and the legacy
//     FIREBASE_URL / ESP_TOKEN / READ_TOKEN style names)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Secrets (store secret, client tokens, admin password) should be set via
//     environment variables, not committed config files
//   - An empty client token disables nothing: no credential can match it
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Store.Driver)
package config
