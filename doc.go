// Package devicesdk is a framework for building device services: bridges
// between a protocol-specific driver and the platform's north-bound
// services (core-metadata, core-data, support-logging, and an optional
// registry).
//
// A device service built on this SDK supplies a driver (see
// service.Driver) and hands control to the lifecycle engine in the
// service package. The engine acquires configuration from file or
// registry, waits for its upstream dependencies, reconciles the service's
// metadata registration, imports devices and provision watchers, brings
// up the driver, hosts the HTTP control surface, and posts driver
// readings to the data sink through a worker pool.
//
// # Layout
//
//   - service: the lifecycle engine and driver contract
//   - config: typed configuration, TOML loading, registry resolution
//   - clients: REST clients for core-metadata, core-data, support-logging
//   - registry: the registry/config-store client (Consul HTTP API)
//   - devmap, watchlist, models: device state and platform entities
//   - restserver: the HTTP control surface
//   - scheduler, transform, metric, natsclient, logging: supporting
//     subsystems
//   - pkg/nvpairs, pkg/retry, pkg/worker: generic building blocks
//
// Binaries live under cmd; cmd/device-counter is a complete example
// service with a simulated counter device.
package devicesdk
