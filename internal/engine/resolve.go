package engine

import (
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/assetmirror/internal/fsops"
)

// ResolveDestination returns destinationBase/unitID, cleaned.
// It performs no I/O. The unit ID must name a direct child of the base.
func ResolveDestination(destinationBase, unitID string) (string, error) {
	if err := fsops.ValidateIdentifier(unitID); err != nil {
		return "", err
	}

	base := filepath.Clean(destinationBase)
	dest := filepath.Join(base, unitID)
	if filepath.Dir(dest) != base {
		return "", fmt.Errorf("unit id %q does not resolve to a direct child of %s", unitID, base)
	}

	return dest, nil
}
