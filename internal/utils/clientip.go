package utils

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Headers consulted, in order, when the origin sits behind a trusted proxy.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// ClientIP resolves the caller address of r. RemoteAddr is used unless
// trustProxy is set, in which case the first non-empty proxy header wins.
// Only the left-most X-Forwarded-For entry is considered.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			v := r.Header.Get(h)
			if h == "X-Forwarded-For" {
				v, _, _ = strings.Cut(v, ",")
			}
			if ip := hostOnly(strings.TrimSpace(v)); ip != "" {
				return ip
			}
		}
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(s string) string {
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

// AddrSet matches addresses against a list of prefixes. Single addresses are
// stored as full-length prefixes.
type AddrSet struct {
	prefixes []netip.Prefix
}

// ParseAddrSet parses entries such as "10.0.0.0/8" or "192.0.2.7". Blank
// entries are skipped. Invalid entries are reported together while the valid
// ones are still kept.
func ParseAddrSet(entries []string) (*AddrSet, error) {
	s := &AddrSet{}
	var errs []error
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			s.prefixes = append(s.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid address or prefix %q", e))
			continue
		}
		a = a.Unmap().WithZone("")
		s.prefixes = append(s.prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return s, errors.Join(errs...)
}

func (s *AddrSet) Len() int { return len(s.prefixes) }

// Contains reports whether ip falls into one of the prefixes. IPv4-mapped
// IPv6 addresses match their IPv4 form.
func (s *AddrSet) Contains(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap().WithZone("")
	for _, p := range s.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
