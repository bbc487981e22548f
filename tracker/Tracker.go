// Package tracker implements the telemetry collaborators: loggers that
// accept high-frequency scalar writes and internally rate-limit or
// persist them.
package tracker

// Logger accepts one map of scalar diagnostics per call. Callers write
// unconditionally on every step or episode; the logger is responsible
// for aggregation and throttling.
type Logger interface {
	Write(map[string]float64) error
}

// MultiLogger fans writes out to several loggers.
type MultiLogger []Logger

// Write sends the diagnostics to every wrapped logger.
func (m MultiLogger) Write(data map[string]float64) error {
	for _, logger := range m {
		if err := logger.Write(data); err != nil {
			return err
		}
	}
	return nil
}
