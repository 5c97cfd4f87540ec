package geocode

import (
	"context"
	"net"
	"strings"
)

// Chain：IP 字面量交给 IP 解析器（配置时），其余地址交给 Default
type Chain struct {
	Default Resolver
	IP      Resolver
}

func (c Chain) Resolve(ctx context.Context, address string) (Result, error) {
	if c.IP != nil && net.ParseIP(strings.TrimSpace(address)) != nil {
		return c.IP.Resolve(ctx, address)
	}
	return c.Default.Resolve(ctx, address)
}
