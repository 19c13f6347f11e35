// Package containers starts the Docker services the worker's integration
// tests run against, using testcontainers-go:
//
//   - MySQL 8.0 as the persistent cache and sync queue database
//   - Eclipse Mosquitto as the push and sync MQTT broker
//   - ntfy as a shoutrrr notification forwarding target
//
//nolint:misspell // Mosquitto is the official Eclipse project name
//
// Integration tests carry the "integration" build tag:
//
//	//go:build integration
//
// and run with:
//
//	go test -tags=integration ./...
package containers
