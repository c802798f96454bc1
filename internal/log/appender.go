package log

import "io"

// teeWriter fans out every write to all of its member writers, tracking
// the first write error (if any) without short-circuiting the rest —
// a console write failing should never stop the file appender from
// getting its copy, and vice versa.
type teeWriter struct {
	writers []io.Writer
}

func newTeeWriter() *teeWriter {
	return &teeWriter{}
}

func (t *teeWriter) Write(p []byte) (n int, err error) {
	for _, w := range t.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

func (t *teeWriter) add(w io.Writer) {
	t.writers = append(t.writers, w)
}

// FileAppenderOpt configures the rotating file appender (C13); only the
// lumberjack knobs this daemon actually exposes through config.go's
// LoggerConfig.File are carried.
type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}
