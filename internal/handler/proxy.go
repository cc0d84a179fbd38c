package handler

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// proxySet доверенные прокси в том же формате, что и у gin: IP или CIDR
type proxySet []*net.IPNet

func newProxySet(proxies []string) proxySet {
	var set proxySet
	for _, p := range proxies {
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				continue
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			set = append(set, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		if _, network, err := net.ParseCIDR(p); err == nil {
			set = append(set, network)
		}
	}
	return set
}

// trusted сообщает, пришёл ли запрос напрямую от доверенного прокси
func (s proxySet) trusted(c *gin.Context) bool {
	ip := net.ParseIP(c.RemoteIP())
	if ip == nil {
		return false
	}
	for _, network := range s {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
