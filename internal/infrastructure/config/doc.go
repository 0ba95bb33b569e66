// Package config handles loading and validating the gateway configuration.
//
// Every setting has a dotted key (port, auth, auth.keys, cache.users, ...)
// and can come from four layers, later layers winning:
//
//	defaults → YAML file → LUCKPERMS_REST_<KEY> env → -D luckperms.rest.<key>=value
//
// Security Considerations:
//   - API keys and broker passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", map[string]string{"auth": "true"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range cfg.Warnings() {
//	    logger.Warn(w)
//	}
package config
