package log

// Cfg configures a HostLogger.
type Cfg struct {
	// Path is the target file for file-based output.
	Path string `mapstructure:"path"`

	// Level is the minimum level that will be emitted. Supports hot reload
	// through SetLevel without recreating the logger.
	Level string `mapstructure:"level"`

	// FileAppender enables file output.
	FileAppender bool `mapstructure:"fileAppender"`

	// ConsoleAppender enables stderr output.
	ConsoleAppender bool `mapstructure:"consoleAppender"`
}

var _defaultCfg = &Cfg{
	Level:           "debug",
	ConsoleAppender: true,
}

func getDefaultCfg() *Cfg {
	return _defaultCfg
}
