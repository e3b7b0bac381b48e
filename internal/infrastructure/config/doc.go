// Package config loads and validates the relay core configuration.
//
// Configuration is read from a single YAML file. A small set of values
// (secrets, broker connection details) can be overridden via RELAY_CORE_*
// environment variables so the file itself never has to contain credentials.
//
// Defaults are applied after loading, so a minimal config only needs the
// relay broker host and a JWT secret:
//
//	relay:
//	  broker:
//	    host: broker.local
//	security:
//	  jwt_secret: change-me
package config
