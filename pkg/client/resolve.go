package client

import (
	"context"
	"fmt"
)

// ResolveDevice maps a command-line device argument to a device ID. ref is
// first treated as a hostname; when no device reports that hostname it is
// treated as a device ID.
//
// It returns ErrAmbiguousDevice when several devices share the hostname and
// ErrNoMatchingDevice when nothing matches. Callers report both as warnings.
func (c *Client) ResolveDevice(ctx context.Context, ref string) (string, error) {
	matched, err := c.FilteredDevices(ctx, NewAttribute("hostname", ref, ScopeInventory))
	if err != nil {
		return "", err
	}
	switch {
	case len(matched) > 1:
		return "", fmt.Errorf("%w %s (%d devices)", ErrAmbiguousDevice, ref, len(matched))
	case len(matched) == 1:
		return matched[0].ID, nil
	}

	byID, err := c.DeviceWithID(ctx, ref)
	if err != nil {
		return "", err
	}
	if len(byID) > 0 {
		return ref, nil
	}
	return "", fmt.Errorf("%w %s", ErrNoMatchingDevice, ref)
}
