// Package config defines tollgate's application configuration.
//
// Configuration is loaded from a YAML file, defaults are applied, and
// environment variables of the form TOLLGATE_SECTION_FIELD override file
// values. The loading sequence is:
//
//  1. Load YAML from file (a missing default file is not an error)
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate the final configuration
//
// The application configuration selects the storage backend, file
// locations, audit journal settings, logging, and serve-mode behavior.
// The rate limits themselves live in the limits store, not here.
package config
