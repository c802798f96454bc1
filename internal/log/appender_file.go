package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newFileWriter builds the rotating file writer backing FileAppenderOpt.
func newFileWriter(opt FileAppenderOpt) io.Writer {
	return &lumberjack.Logger{
		Filename:   opt.Filename,
		MaxSize:    opt.MaxSize,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAge,
		Compress:   opt.Compress,
	}
}
