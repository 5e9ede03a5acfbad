// Package config provides centralized configuration management for licensegate.
// It loads configuration from multiple sources, validates it, and exposes a
// type-safe struct to the rest of the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern LICENSEGATE_<SECTION>_<FIELD>:
//
//	LICENSEGATE_SERVER_PORT=8765
//	LICENSEGATE_LICENSE_ACTIVATION_URL=https://license.example.com/api/activate
//	LICENSEGATE_LICENSE_INSECURE_SKIP_VERIFY=false
//	LICENSEGATE_STORAGE_BACKEND=sqlite
//	LICENSEGATE_FEATURES=export:true,sync:false
//
// # Configuration File
//
//	license:
//	  activation_url: https://license.example.com/api/activate
//	  validation_url: https://license.example.com/api/validate
//	  request_timeout: 10s
//	  activation_date_policy: server
//	storage:
//	  backend: file
//	  failure_mode: strict
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Addr())
package config
