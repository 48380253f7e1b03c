// Package config provides configuration loading and validation for the meeting
// action items service. It reads a YAML file, fills defaults, takes the OpenAI
// credential from the environment (optionally from a .env file) and validates
// every section.
package config
