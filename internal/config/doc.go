// Package config defines the enginectl settings file and provides helpers to
// load, validate and save it in YAML format.
//
// A Config names one engine package, the hosts it is deployed to and the
// command templates used to build, launch and provision it. Validate fills
// every unset field with the defaults the engines were historically run with.
package config
