// Package relayer describes the off-chain relayer processes bridging the
// two chains, and materializes their config files from on-disk templates
// plus live values taken from the current run.
package relayer

import (
	"errors"
	"fmt"
)

// Kind identifies which relayer flavor a spec launches.
type Kind string

const (
	KindBeacon    Kind = "beacon"
	KindBeefy     Kind = "beefy"
	KindExecution Kind = "execution"
	KindSolochain Kind = "solochain"
)

// ParseKind validates a relayer kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBeacon, KindBeefy, KindExecution, KindSolochain:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown relayer kind %q", s)
	}
}

// KeyKind tags which chain a signing key belongs to.
type KeyKind string

const (
	KeyEthereum  KeyKind = "ethereum"
	KeySubstrate KeyKind = "substrate"
)

// SigningKey is an opaque secret passed through to the relayer unchanged.
type SigningKey struct {
	Kind  KeyKind
	Value string
}

// Spec describes one relayer instance. Created once before launch,
// immutable afterward.
type Spec struct {
	Name         string
	Kind         Kind
	TemplatePath string
	OutputPath   string
	SigningKey   SigningKey
}

// ErrTemplateNotFound marks a missing config template. This is a
// configuration error and is never retried.
var ErrTemplateNotFound = errors.New("relayer config template not found")

// ConfigError is a fatal configuration failure: a missing or malformed
// template, or a schema violation. It names the offending path and field so
// the operator can fix the template rather than chase a downstream failure.
type ConfigError struct {
	Path  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("relayer config %s: field %q: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("relayer config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
