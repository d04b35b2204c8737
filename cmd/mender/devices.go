package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jmerrifield20/menderapi/pkg/client"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ── devices ──────────────────────────────────────────────────────────────────

var (
	devicesFormat  string
	devicesScope   string
	devicesFilters []string
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices in the inventory",
	Long: `List every device in the Mender inventory with the attributes of one scope.

Filters narrow the list; a device is shown only when it has every
name=value attribute given with --filter.

Examples:
  mender devices --username admin@example.com
  mender devices --scope inventory --filter device_type=raspberrypi4
  mender devices --format json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesFormat, "format", "text", "Output format: text, json, or yaml")
	devicesCmd.Flags().StringVar(&devicesScope, "scope", client.ScopeIdentity, "Attribute scope to print; empty prints all scopes")
	devicesCmd.Flags().StringArrayVar(&devicesFilters, "filter", nil, "Only show devices with attribute name=value (repeatable)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	criteria, err := parseFilters(devicesFilters)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}

	devices, err := s.FilteredDevices(cmd.Context(), criteria...)
	if err != nil {
		return err
	}
	return printDevices(cmd.OutOrStdout(), devices, devicesScope, devicesFormat)
}

// parseFilters turns name=value flags into inventory-scope criteria.
func parseFilters(filters []string) ([]client.Attribute, error) {
	criteria := make([]client.Attribute, 0, len(filters))
	for _, f := range filters {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --filter %q: want name=value", f)
		}
		criteria = append(criteria, client.NewAttribute(name, value, ""))
	}
	return criteria, nil
}

// deviceView is one device as printed, restricted to a scope.
type deviceView struct {
	ID         string             `json:"id" yaml:"id"`
	Attributes []client.Attribute `json:"attributes" yaml:"attributes"`
}

func viewOf(d client.Device, scope string) deviceView {
	attrs := d.Attributes
	if scope != "" {
		attrs = d.AttributesInScope(scope)
	}
	return deviceView{ID: d.ID, Attributes: attrs}
}

func printDevices(w io.Writer, devices []client.Device, scope, format string) error {
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, viewOf(d, scope))
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(views)
	case "text":
		for _, v := range views {
			fmt.Fprintf(w, "id = %s\n", v.ID)
			for _, a := range v.Attributes {
				fmt.Fprintf(w, "\t%s = %v\n", a.Name, a.Value)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown --format %q: want text, json, or yaml", format)
	}
}

// ── hostname-to-id ───────────────────────────────────────────────────────────

var hostnameToIDCmd = &cobra.Command{
	Use:   "hostname-to-id <hostname>",
	Short: "Print the device IDs registered with a hostname",
	Long: `Print the ID of every device whose inventory hostname attribute equals
<hostname>, one per line. Nothing is printed when no device matches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		ids, err := hostnameToID(cmd.Context(), s.Client, args[0])
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func hostnameToID(ctx context.Context, c *client.Client, hostname string) ([]string, error) {
	devices, err := c.FilteredDevices(ctx, client.NewAttribute("hostname", hostname, client.ScopeInventory))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return ids, nil
}
