package metrics

import "github.com/prometheus/client_golang/prometheus"

// Option defines some options to the metrics initialization
type Option func(*settings)

type settings struct {
	namespace  string
	registerer prometheus.Registerer
}

func defaultSettings() *settings {
	return &settings{
		namespace: "profilestore",
	}
}

// WithNamespace defines the prefix of all registered metrics. The default is "profilestore".
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithRegisterer registers collectors on some registry, e.g. prometheus.DefaultRegisterer.
// By default, collectors are registered on a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) {
		s.registerer = reg
	}
}
