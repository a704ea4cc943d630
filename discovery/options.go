package discovery

import "time"

type settings struct {
	host      string
	startPort uint16
	endPort   uint16
	attempts  uint
	interval  time.Duration
	timeout   time.Duration
}

type Option func(settings) settings

func defaultSettings() settings {
	return settings{
		host:      "localhost",
		startPort: 9000,
		endPort:   9010,
		attempts:  1,
		interval:  time.Second,
		timeout:   500 * time.Millisecond,
	}
}

func applyOptions(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		s = opt(s)
	}
	return s
}

func WithHost(host string) Option {
	return func(s settings) settings {
		s.host = host
		return s
	}
}

func WithPortRange(startPort, endPort uint16) Option {
	return func(s settings) settings {
		s.startPort = startPort
		s.endPort = endPort
		return s
	}
}

func WithPort(port uint16) Option {
	return WithPortRange(port, port)
}

// WithAttempts sets how many times Find scans the range, waiting interval
// between scans.
func WithAttempts(attempts uint, interval time.Duration) Option {
	return func(s settings) settings {
		s.attempts = attempts
		s.interval = interval
		return s
	}
}
