package sandbox

import "time"

const (
	defaultInterpreter    = "python3 -I -u"
	defaultSourceFile     = "solution.py"
	defaultMaxOutputBytes = 64 * 1024
	defaultTimeLimit      = 10 * time.Second

	// TracebackMarker on stderr marks a crashed run even with exit code 0.
	TracebackMarker = "Traceback (most recent call last)"
)

// Config controls how submissions are launched.
type Config struct {
	// Interpreter is a shell-quoted command line; the source path is appended.
	Interpreter    string        `yaml:"interpreter"`
	SourceFile     string        `yaml:"sourceFile"`
	ScratchRoot    string        `yaml:"scratchRoot"`
	MaxOutputBytes int64         `yaml:"maxOutputBytes"`
	MemoryLimitMB  int           `yaml:"memoryLimitMB"`
	TimeLimit      time.Duration `yaml:"timeLimit"`
	Env            []string      `yaml:"env"`
}

// DefaultConfig returns the settings used for Python submissions.
func DefaultConfig() Config {
	return Config{
		Interpreter:    defaultInterpreter,
		SourceFile:     defaultSourceFile,
		MaxOutputBytes: defaultMaxOutputBytes,
		TimeLimit:      defaultTimeLimit,
		Env:            []string{"PYTHONIOENCODING=utf-8"},
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Interpreter == "" {
		c.Interpreter = d.Interpreter
	}
	if c.SourceFile == "" {
		c.SourceFile = d.SourceFile
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = d.MaxOutputBytes
	}
	if c.TimeLimit <= 0 {
		c.TimeLimit = d.TimeLimit
	}
	if c.Env == nil {
		c.Env = d.Env
	}
}
