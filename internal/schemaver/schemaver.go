// Package schemaver is the single place the runtime decides whether a
// versioned JSON/YAML document is acceptable. Every file loader (allowlist,
// pairings, channel policy, trust roots, route bindings, route table,
// fixtures, runtime state) declares its supported range here instead of
// hand-rolling its own check.
package schemaver

import (
	"errors"
	"fmt"
)

var ErrUnsupportedVersion = errors.New("schemaver: unsupported schema_version")

// Policy names one document format and the schema_version range it accepts.
type Policy struct {
	Format string
	Min    int
	Max    int
}

// Check validates a document's schema_version against the policy. A zero
// version is treated as the policy minimum (documents written before the
// field existed), which is the upgrade path; anything above Max is rejected
// rather than best-effort parsed.
func (p Policy) Check(version int) (int, error) {
	if p.Min <= 0 {
		p.Min = 1
	}
	if p.Max < p.Min {
		p.Max = p.Min
	}
	if version == 0 {
		return p.Min, nil
	}
	if version < p.Min || version > p.Max {
		return 0, fmt.Errorf("%w: %s schema_version %d (supported %d..%d)",
			ErrUnsupportedVersion, p.Format, version, p.Min, p.Max)
	}
	return version, nil
}
