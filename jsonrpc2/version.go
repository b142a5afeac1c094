package jsonrpc2

import (
	"bytes"
	"fmt"
)

// fixedVersion is an uninstantiated type which always marshals to our constant
// Version, and only succeeds to unmarshal that same version.
type fixedVersion struct{}

func (v fixedVersion) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Version + `"`), nil
}

func (v *fixedVersion) UnmarshalJSON(version []byte) error {
	if bytes.Equal(version, []byte(`"`+Version+`"`)) {
		return nil
	}
	return fmt.Errorf("unsupported version: %s", version)
}
