/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package netsync

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/model"
)

// Well-known router/server addresses probed first within a subnet. Content
// servers are most often parked on the gateway or just above it.
var preferredHostOctets = []int{1, 2, 254, 100, 10, 50}

// Other private /24s scanned after the local subnet comes up empty.
var fallbackSubnets = []string{"192.168.1", "192.168.0", "10.0.0", "10.1.1"}

// runDiscovery scans the network for a content server and adopts the first
// address that answers with a schedule document. The client stays in
// StateDisconnected when nothing answers; the poll loop keeps retrying the
// last-known address.
func (c *Client) runDiscovery(ctx context.Context) {
	c.mu.Lock()
	c.state = StateDiscovering
	c.mu.Unlock()

	c.logger.Info().Msg("starting server discovery")

	found := c.discover(ctx)
	if found == "" {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Warn().Msg("discovery finished without finding a server")
		return
	}

	c.mu.Lock()
	c.state = StateDisconnected // until the first fetch confirms it
	c.serverURL = found
	c.mu.Unlock()

	c.logger.Info().Str("server", found).Msg("content server discovered")
	c.bus.Publish(events.EventServerDiscovered, events.Payload{"server_url": found})
}

// discover probes candidate hosts in priority order and returns the base URL
// of the first responder, or "".
func (c *Client) discover(ctx context.Context) string {
	for _, subnet := range c.candidateSubnets() {
		if url := c.scanSubnet(ctx, subnet); url != "" {
			return url
		}
		if ctx.Err() != nil {
			return ""
		}
	}
	return ""
}

// candidateSubnets lists the /24 prefixes to scan. A configured prefix
// restricts the scan to that subnet; otherwise the local interface subnet
// comes first, then a short list of common private ranges.
func (c *Client) candidateSubnets() []string {
	if c.cfg.SubnetPrefix != "" {
		return []string{strings.TrimSuffix(c.cfg.SubnetPrefix, ".")}
	}

	var subnets []string
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			subnets = append(subnets, s)
		}
	}

	add(localSubnetPrefix())
	for _, s := range fallbackSubnets {
		add(s)
	}
	return subnets
}

// scanSubnet probes the preferred host octets first, then sweeps the rest of
// the /24.
func (c *Client) scanSubnet(ctx context.Context, prefix string) string {
	c.logger.Debug().Str("subnet", prefix).Msg("scanning subnet")

	probed := map[int]bool{}
	for _, octet := range preferredHostOctets {
		probed[octet] = true
		if url := c.probe(ctx, fmt.Sprintf("%s.%d", prefix, octet)); url != "" {
			return url
		}
		if ctx.Err() != nil {
			return ""
		}
	}

	for octet := 1; octet < 255; octet++ {
		if probed[octet] {
			continue
		}
		if url := c.probe(ctx, fmt.Sprintf("%s.%d", prefix, octet)); url != "" {
			return url
		}
		if ctx.Err() != nil {
			return ""
		}
	}
	return ""
}

// probe checks a single host for a schedule endpoint. A responder only
// counts when its body actually looks like a schedule document, so random
// web servers on port 3232 are not mistaken for content servers.
func (c *Client) probe(ctx context.Context, host string) string {
	base := fmt.Sprintf("http://%s:%d", host, DefaultPort)

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, base+schedulePath, nil)
	if err != nil {
		return ""
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || !model.LooksLikeSchedule(body) {
		return ""
	}
	return base
}

// localSubnetPrefix derives the /24 prefix of the first non-loopback IPv4
// interface, e.g. "192.168.1".
func localSubnetPrefix() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			parts := strings.Split(ip4.String(), ".")
			if len(parts) == 4 {
				return strings.Join(parts[:3], ".")
			}
		}
	}
	return ""
}

// Discover runs a one-shot scan and returns the base URL of the first
// responding server, or "". Used by the discover CLI command.
func (c *Client) Discover(ctx context.Context) string {
	return c.discover(ctx)
}
