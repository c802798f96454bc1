package log

// LoggerConfig configures the process-wide Logger built by Init.
type LoggerConfig struct {
	Level       string           `mapstructure:"level"`
	ForceColors bool             `mapstructure:"force_colors"`
	Console     bool             `mapstructure:"console"`
	File        *FileAppenderOpt `mapstructure:"file,omitempty"`
}
