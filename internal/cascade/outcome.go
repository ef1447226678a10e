package cascade

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ironsheep/rollcount/internal/detection"
)

// Kind is the verdict of one strategy attempt.
type Kind int

const (
	// KindAccepted means the strategy produced a set.
	KindAccepted Kind = iota

	// KindUnavailable means the strategy could not run at all.
	KindUnavailable

	// KindImplausible means the strategy ran but its result cannot be
	// trusted.
	KindImplausible
)

var kindNames = map[Kind]string{
	KindAccepted:    "accepted",
	KindUnavailable: "unavailable",
	KindImplausible: "implausible",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return errors.Errorf("unknown outcome kind %q", text)
}

// Outcome is the result of one strategy attempt. Set is meaningful for
// accepted outcomes and, when the strategy produced something, implausible
// ones.
type Outcome struct {
	Kind   Kind
	Set    detection.Set
	Reason string

	// produced reports whether Set came out of the strategy.
	produced bool
}

// Accepted wraps a produced set.
func Accepted(set detection.Set) Outcome {
	return Outcome{Kind: KindAccepted, Set: set, produced: true}
}

// Unavailable reports a strategy that could not run.
func Unavailable(reason string) Outcome {
	return Outcome{Kind: KindUnavailable, Reason: reason}
}

// Implausible reports a result that should not be trusted.
func Implausible(set detection.Set, reason string) Outcome {
	return Outcome{Kind: KindImplausible, Set: set, Reason: reason, produced: true}
}

// Failed reports a strategy that ran but produced nothing usable.
func Failed(reason string) Outcome {
	return Outcome{Kind: KindImplausible, Reason: reason}
}

// Produced reports whether the outcome carries a set from the strategy.
func (o Outcome) Produced() bool {
	return o.produced
}

// Attempt is one entry of the trace a run returns.
type Attempt struct {
	Method  detection.Method `json:"method"`
	Kind    Kind             `json:"outcome"`
	Reason  string           `json:"reason,omitempty"`
	Count   int              `json:"count"`
	Elapsed time.Duration    `json:"elapsed_ns"`
}
