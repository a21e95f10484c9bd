// Package component defines the lifecycle contract shared by the
// long-running parts of the application: the analysis engine and the
// status API server.
//
// Components are registered with a Registry, started in registration
// order and stopped in reverse order.
//
// # Interfaces
//
//   - Component: lifecycle (Start/Stop) and health reporting
//   - Describable: startup summary descriptions
//   - RouteProvider: HTTP routes for the startup summary
package component
