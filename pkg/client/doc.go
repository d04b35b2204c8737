// Package client is a Go SDK for the Mender device-management API.
//
// It covers what the mender command-line tools need: logging in, reading the
// device inventory once per run, picking devices by attribute, and opening a
// remote terminal through mender-cli.
//
// # Connecting
//
// New resolves credentials once. A saved token (usually from the JWT
// environment variable) is used as-is; otherwise the password is sent to the
// login endpoint and the returned token is used for every later call:
//
//	c, err := client.New(ctx, client.DefaultServer, "user@example.com",
//	    client.WithCredentials(client.ResolveSource(os.Getenv("JWT"), password, client.Prompt{})),
//	    client.WithLogger(logger),
//	)
//	if err != nil {
//	    var authErr *client.AuthError
//	    if errors.As(err, &authErr) { ... }
//	}
//
// # Inventory
//
// The device list is fetched on first use and cached for the lifetime of the
// Client. Concurrent first callers share one request:
//
//	devices, err := c.Devices(ctx)
//	matched, err := c.FilteredDevices(ctx, client.NewAttribute("hostname", "dev1", client.ScopeInventory))
//	one, err := c.DeviceWithID(ctx, "5f2a...")
//
// FilteredDevices keeps a device only when every criterion is satisfied by
// one of its attributes: same name, same value, and same scope unless the
// criterion's scope is empty. NewAttribute always sets a scope, so a
// criterion that matches any scope is written as a literal:
//
//	anyScope := client.Attribute{Name: "mac", Value: "dc:a6:32:00:00:01"}
//
// Returned devices are copies; changing them does not touch the cache.
//
// # Terminals
//
// OpenTerminal writes the token to a private temp file, runs
//
//	mender-cli --server <url> --token <file> terminal <device-id>
//
// and removes the file when the helper exits. Use WithLauncher to replace the
// process launcher in tests.
//
// # Errors
//
// Nothing is retried. Login failures come back as *AuthError, failed
// requests as *TransportError, and responses with status 400 or above as
// *HTTPStatusError.
package client
