// Package patch applies the three binary patch formats ROM romhacks
// commonly ship in (IPS, BPS, UPS) to a source file's bytes, producing the
// patched target bytes in memory for the Executor to write out.
package patch

import "fmt"

// ErrUnsupportedKind is returned by Apply for any kind other than
// "IPS", "BPS", or "UPS".
type ErrUnsupportedKind struct {
	Kind string
}

func (e *ErrUnsupportedKind) Error() string {
	return fmt.Sprintf("patch: unsupported kind %q", e.Kind)
}

// Apply dispatches to the format-specific applier named by kind
// (romset.Candidate.PatchKind: "IPS", "BPS", or "UPS").
func Apply(kind string, source, patchData []byte) ([]byte, error) {
	switch kind {
	case "IPS":
		return ApplyIPS(source, patchData)
	case "UPS":
		return ApplyUPS(source, patchData)
	case "BPS":
		return ApplyBPS(source, patchData)
	default:
		return nil, &ErrUnsupportedKind{Kind: kind}
	}
}
