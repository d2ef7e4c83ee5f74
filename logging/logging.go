// Package logging tunes log levels across marketd subsystems.
package logging

import (
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap/zapcore"
)

// SetLogLevels sets levels for the given subsystems. The special name
// "*" applies its level to every registered subsystem first, so
// specific entries can override it.
func SetLogLevels(systems map[string]logging.LogLevel) error {
	for name, level := range systems {
		l := zapcore.Level(level)
		if name == "*" {
			for _, sub := range logging.GetSubsystems() {
				if err := logging.SetLogLevel(sub, l.CapitalString()); err != nil {
					return err
				}
			}
			continue
		}
		if err := logging.SetLogLevel(name, l.CapitalString()); err != nil {
			return err
		}
	}
	return nil
}
