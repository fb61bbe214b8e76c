package guard

import (
	"context"
	"net"
	"strings"

	"github.com/faustbrian/sequencer/internal/domain"
)

// HostnameGuard denies operations whose name does not match one of a
// configured allow-list of host patterns, used when an operation's
// name doubles as (or encodes) a target host. Supports exact
// hostnames, "*" (match everything), and "*.example.com" wildcard
// subdomain matches.
type HostnameGuard struct {
	Allowed []string
}

func (HostnameGuard) Name() string { return "hostname" }

func (g HostnameGuard) Evaluate(_ context.Context, op *domain.Descriptor) Result {
	if len(g.Allowed) == 0 {
		return Result{Verdict: Allow}
	}
	for _, rule := range g.Allowed {
		if matchesHost(rule, op.Name) {
			return Result{Verdict: Allow}
		}
	}
	return Result{Verdict: Deny, Reason: "hostname not in allow-list: " + op.Name}
}

func matchesHost(rule, host string) bool {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return false
	}
	if rule == "*" {
		return true
	}
	if rule == host {
		return true
	}
	if strings.HasPrefix(rule, "*.") {
		suffix := rule[1:]
		return strings.HasSuffix(strings.ToLower(host), strings.ToLower(suffix))
	}
	return false
}

// IPAddressGuard denies operations whose actor id (the polymorphic
// (actor_type, actor_id) pair, §9) resolves to an IP address outside
// an allow-list of exact addresses and CIDR ranges. Only applies when
// ActorType is "ip"; any other actor type is allowed through
// unconditionally, since this guard has nothing to check.
type IPAddressGuard struct {
	Allowed []string
}

func (IPAddressGuard) Name() string { return "ip_address" }

func (g IPAddressGuard) Evaluate(_ context.Context, op *domain.Descriptor) Result {
	if op.ActorType != "ip" {
		return Result{Verdict: Allow}
	}
	ip := net.ParseIP(op.ActorID)
	if ip == nil {
		return Result{Verdict: Deny, Reason: "actor_id is not a valid IP: " + op.ActorID}
	}
	if len(g.Allowed) == 0 {
		return Result{Verdict: Allow}
	}
	for _, rule := range g.Allowed {
		if matchesIP(rule, ip) {
			return Result{Verdict: Allow}
		}
	}
	return Result{Verdict: Deny, Reason: "ip address not in allow-list: " + op.ActorID}
}

func matchesIP(rule string, ip net.IP) bool {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return false
	}
	if ruleIP := net.ParseIP(rule); ruleIP != nil {
		return ruleIP.Equal(ip)
	}
	if _, cidr, err := net.ParseCIDR(rule); err == nil {
		return cidr.Contains(ip)
	}
	return false
}

// isPrivateIP reports whether ip falls in an RFC 1918 private range or
// the IPv4 loopback range (127.0.0.0/8).
// Exposed for guards that want to distinguish internal actors from
// external ones without needing an explicit allow-list entry per host.
func isPrivateIP(ip net.IP) bool {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// PrivateNetworkGuard denies "ip"-typed actors outside RFC 1918 space
// and IPv4 loopback, unless explicitly present in Allowed.
type PrivateNetworkGuard struct {
	Allowed []string
}

func (PrivateNetworkGuard) Name() string { return "private_network" }

func (g PrivateNetworkGuard) Evaluate(_ context.Context, op *domain.Descriptor) Result {
	if op.ActorType != "ip" {
		return Result{Verdict: Allow}
	}
	ip := net.ParseIP(op.ActorID)
	if ip == nil {
		return Result{Verdict: Deny, Reason: "actor_id is not a valid IP: " + op.ActorID}
	}
	if isPrivateIP(ip) {
		return Result{Verdict: Allow}
	}
	for _, rule := range g.Allowed {
		if matchesIP(rule, ip) {
			return Result{Verdict: Allow}
		}
	}
	return Result{Verdict: Deny, Reason: "external address blocked: " + op.ActorID}
}
