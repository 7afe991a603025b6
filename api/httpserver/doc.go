// Package httpserver is the base HTTP server of the enclave host.
//
// Components implement RouteRegistrar and are mounted on one chi router
// together with:
//
//   - /livez and /readyz health checks
//   - /drain and /undrain to take the host out of a load balancer
//   - /debug pprof handlers when EnablePprof is set
//
// Every request goes through chi's RequestID, RealIP and Recoverer
// middleware and is access-logged with go-utils/httplogger. Metrics are
// served on a separate listener. Run blocks until its context is
// cancelled, marks the server not ready, waits DrainDuration and then shuts
// both listeners down within GracefulShutdownDuration.
package httpserver
