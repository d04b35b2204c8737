package client

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Attribute scopes reported by the Mender inventory service.
const (
	ScopeInventory = "inventory"
	ScopeIdentity  = "identity"
	ScopeSystem    = "system"
)

// Attribute is one name/value pair reported for a device. Value is a string,
// a float64, or a list of those, exactly as decoded from JSON.
type Attribute struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
	Scope string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// NewAttribute builds an attribute, defaulting scope to "inventory". A filter
// criterion that should match any scope needs an Attribute literal with an
// empty Scope instead.
func NewAttribute(name string, value any, scope string) Attribute {
	if scope == "" {
		scope = ScopeInventory
	}
	return Attribute{Name: name, Value: value, Scope: scope}
}

// satisfies reports whether a fulfils criterion: same name, same value, and
// same scope unless the criterion leaves scope empty. Values are compared by
// their printed form so that 2 and 2.0 match.
func (a Attribute) satisfies(criterion Attribute) bool {
	if a.Name != criterion.Name {
		return false
	}
	if criterion.Scope != "" && a.Scope != criterion.Scope {
		return false
	}
	return fmt.Sprint(a.Value) == fmt.Sprint(criterion.Value)
}

// Device is one entry of the inventory. Devices are never modified after
// they are fetched.
type Device struct {
	ID         string      `json:"id" yaml:"id"`
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
	UpdatedTS  time.Time   `json:"updated_ts,omitzero" yaml:"updated_ts,omitempty"`
}

// Attribute returns the first attribute called name.
func (d Device) Attribute(name string) (Attribute, bool) {
	for _, a := range d.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttributesInScope returns the attributes with the given scope, in order.
func (d Device) AttributesInScope(scope string) []Attribute {
	var out []Attribute
	for _, a := range d.Attributes {
		if a.Scope == scope {
			out = append(out, a)
		}
	}
	return out
}

// Hostname returns the value of the "hostname" attribute, or "".
func (d Device) Hostname() string {
	if a, ok := d.Attribute("hostname"); ok {
		return fmt.Sprint(a.Value)
	}
	return ""
}

// Matches reports whether every criterion is satisfied by some attribute of
// the device. A device matches an empty criteria list.
func (d Device) Matches(criteria ...Attribute) bool {
	for _, criterion := range criteria {
		if !slices.ContainsFunc(d.Attributes, func(a Attribute) bool { return a.satisfies(criterion) }) {
			return false
		}
	}
	return true
}

type cacheState int

const (
	cacheUnfetched cacheState = iota
	cacheFetched
	cacheFailed
)

// clone returns a copy of d that shares no memory with the cache.
func (d Device) clone() Device {
	if d.Attributes == nil {
		return d
	}
	attrs := make([]Attribute, len(d.Attributes))
	for i, a := range d.Attributes {
		if list, ok := a.Value.([]any); ok {
			a.Value = slices.Clone(list)
		}
		attrs[i] = a
	}
	d.Attributes = attrs
	return d
}

// inventoryCache holds the device list fetched once per Client. A failed
// fetch is remembered too; the client never asks again.
type inventoryCache struct {
	mu      sync.Mutex
	state   cacheState
	devices []Device
	err     error
	flight  singleflight.Group
}

func (ic *inventoryCache) load() (cacheState, []Device, error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.state, ic.devices, ic.err
}

func (ic *inventoryCache) store(devices []Device, err error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if err != nil {
		ic.state, ic.err = cacheFailed, err
		return
	}
	ic.state, ic.devices = cacheFetched, devices
}

// ensureFetched returns the cached inventory, fetching it on first use.
// Concurrent first callers share a single request. The request is detached
// from each caller's cancellation, so a caller that gives up returns its own
// ctx error and leaves the fetch to finish for everyone else.
func (c *Client) ensureFetched(ctx context.Context) ([]Device, error) {
	if state, devices, err := c.inventory.load(); state != cacheUnfetched {
		return devices, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch inventory: %w", err)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.inventory.flight.DoChan(devicesPath, func() (any, error) {
		// A flight that finished between load and DoChan has already stored.
		if state, devices, err := c.inventory.load(); state != cacheUnfetched {
			return devices, err
		}
		devices, err := c.fetchDevices(fetchCtx)
		c.inventory.store(devices, err)
		return devices, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch inventory: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Device), nil
	}
}

func (c *Client) fetchDevices(ctx context.Context) ([]Device, error) {
	resp, err := c.Get(ctx, devicesPath, nil, "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch inventory: %w", err)
	}
	var devices []Device
	if err := resp.JSON(&devices); err != nil {
		return nil, fmt.Errorf("fetch inventory: %w", err)
	}
	return devices, nil
}

// Devices returns the full inventory. The first call fetches it; every later
// call returns the same devices without contacting the server, even if the
// server's inventory has changed since.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	devices, err := c.ensureFetched(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Device, len(devices))
	for i, d := range devices {
		out[i] = d.clone()
	}
	return out, nil
}

// DeviceWithID returns the cached devices whose ID equals id. IDs are
// expected to be unique but that is not enforced, so the result may hold
// zero, one, or more devices.
func (c *Client) DeviceWithID(ctx context.Context, id string) ([]Device, error) {
	devices, err := c.ensureFetched(ctx)
	if err != nil {
		return nil, err
	}
	var out []Device
	for _, d := range devices {
		if d.ID == id {
			out = append(out, d.clone())
		}
	}
	return out, nil
}

// FilteredDevices returns the cached devices that satisfy all criteria. See
// Device.Matches for what satisfying a criterion means. With no criteria the
// whole inventory is returned.
func (c *Client) FilteredDevices(ctx context.Context, criteria ...Attribute) ([]Device, error) {
	devices, err := c.ensureFetched(ctx)
	if err != nil {
		return nil, err
	}
	var out []Device
	for _, d := range devices {
		if d.Matches(criteria...) {
			out = append(out, d.clone())
		}
	}
	return out, nil
}

// ForAllDevices calls fn on every cached device in inventory order and
// collects the results.
func ForAllDevices[T any](ctx context.Context, c *Client, fn func(Device) T) ([]T, error) {
	devices, err := c.ensureFetched(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(devices))
	for _, d := range devices {
		out = append(out, fn(d.clone()))
	}
	return out, nil
}
