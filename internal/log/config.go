package log

const (
	DefaultPattern    = "%time [%level] %field %msg\n"
	DefaultTimeLayout = "2006-01-02 15:04:05.000"
)

// Config is the `log` section of the configuration file.
type Config struct {
	Level     string           `mapstructure:"level"`
	Pattern   string           `mapstructure:"pattern"`
	Time      string           `mapstructure:"time"`
	Appenders []AppenderConfig `mapstructure:"appenders"`
}

// AppenderConfig selects one output. Type is "console" or "file"; Options are
// decoded into ConsoleAppenderOpt or FileAppenderOpt.
type AppenderConfig struct {
	Type    string                 `mapstructure:"type"`
	Options map[string]interface{} `mapstructure:"options"`
}

type ConsoleAppenderOpt struct {
	Target string `mapstructure:"target"` // stdout or stderr
}

type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}
