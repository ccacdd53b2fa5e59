// Package config provides centralized configuration management for armpose.
//
// # Configuration Sources
//
// Configuration is built from the following sources in increasing order of
// precedence:
//
//  1. Default values (Default)
//  2. A YAML file (config.yaml, configs/config.yaml or ARMPOSE_CONFIG_FILE)
//  3. Environment variables
//
// # Environment Variables
//
// Variables follow the pattern ARMPOSE_<SECTION>_<FIELD>:
//
//	ARMPOSE_SERVER_PORT=8080
//	ARMPOSE_LOGGING_LEVEL=debug
//	ARMPOSE_MODEL_EPOCHS=50
//	ARMPOSE_MQTT_ENABLED=true
//	ARMPOSE_MQTT_BROKER=tcp://localhost:1883
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	paths, _ := cfg.ResolvePaths("")
//	_ = paths.EnsureDirectories()
package config
