package yamlgraph

import (
	"fmt"
	"strings"
	"time"

	"github.com/pergolab/pergola/pkg/domain"
)

// PolicySpec is the YAML shape of an error policy.
//
//	policies:
//	  verify:
//	    max_attempts: 3
//	    timeout: 30s
//	    backoff: exponential:500ms
type PolicySpec struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Timeout     string `yaml:"timeout"`
	Backoff     string `yaml:"backoff"`
}

// ToPolicy converts the spec into a domain.Policy.
func (s PolicySpec) ToPolicy() (domain.Policy, error) {
	p := domain.Policy{MaxAttempts: s.MaxAttempts}

	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
		}
		p.Timeout = d
	}

	if s.Backoff != "" {
		kind, arg, found := strings.Cut(s.Backoff, ":")
		if !found {
			return domain.Policy{}, fmt.Errorf("invalid backoff %q, want kind:duration", s.Backoff)
		}
		base, err := time.ParseDuration(arg)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("invalid backoff duration %q: %w", arg, err)
		}
		switch kind {
		case "constant":
			p.Backoff = domain.ConstantBackoff(base)
		case "exponential":
			p.Backoff = domain.ExponentialBackoff(base)
		default:
			return domain.Policy{}, fmt.Errorf("unknown backoff kind %q", kind)
		}
	}

	return p, nil
}
