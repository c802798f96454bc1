package log

import "sync"

// Logger is the capability surface the rest of tickwatch depends on
// instead of logrus directly. It carries only the methods anything in
// this repo actually calls — Info/Warn/Error plus structured-field
// attachment — not logrus's full level set.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

var (
	once   sync.Once
	logger Logger
)

// GetLogger returns the process-wide Logger built by Init. Callers
// after Start always see a non-nil logger; before that, nil.
func GetLogger() Logger {
	return logger
}

// Init builds the process-wide Logger from cfg. Subsequent calls are
// no-ops: the daemon calls this exactly once during Start.
func Init(cfg *LoggerConfig) {
	once.Do(func() {
		if err := initByConfig(cfg); err != nil {
			panic(err)
		}
	})
}
