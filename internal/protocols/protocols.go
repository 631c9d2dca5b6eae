// Package protocols registers all built-in dissectors.
package protocols

import (
	"fmt"
	"sort"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/engine"
	"firestige.xyz/strix/internal/protocols/eth"
	"firestige.xyz/strix/internal/protocols/ip"
	"firestige.xyz/strix/internal/protocols/isakmp"
	"firestige.xyz/strix/internal/protocols/sctp"
	"firestige.xyz/strix/internal/protocols/sip"
	"firestige.xyz/strix/internal/protocols/tcp"
	"firestige.xyz/strix/internal/protocols/udp"
	"firestige.xyz/strix/internal/registry"
)

// Options select preferences and disabled protocols for RegisterAll.
type Options struct {
	// Preferences maps a protocol filter name to its raw preference map.
	Preferences map[string]map[string]any
	Disabled    []string
}

// RegisterAll registers the frame root and every built-in dissector into b.
func RegisterAll(b *registry.Builder, opts Options) error {
	udpPrefs := udp.DefaultPreferences()
	tcpPrefs := tcp.DefaultPreferences()
	sctpPrefs := sctp.DefaultPreferences()
	targets := map[string]any{
		"udp":  &udpPrefs,
		"tcp":  &tcpPrefs,
		"sctp": &sctpPrefs,
	}

	names := make([]string, 0, len(opts.Preferences))
	for name := range opts.Preferences {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out, ok := targets[name]
		if !ok {
			return fmt.Errorf("%w: protocol %q has no preferences", core.ErrConfigInvalid, name)
		}
		if err := registry.DecodePreferences(opts.Preferences[name], out); err != nil {
			return fmt.Errorf("%s preferences: %w", name, err)
		}
	}

	// Frame root
	engine.Register(b)

	// Link and network layers
	eth.Register(b)
	ip.Register(b)

	// Transports
	udp.Register(b, udpPrefs)
	tcp.Register(b, tcpPrefs)
	sctp.Register(b, sctpPrefs)

	// Applications
	isakmp.Register(b)
	sip.Register(b)

	for _, name := range opts.Disabled {
		b.DisableProtocol(name)
	}
	return nil
}
