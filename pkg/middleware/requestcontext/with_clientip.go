package requestcontext

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gofiber/fiber/v2"
)

type clientIPKey struct{}

type WithClientIPConfig struct {
	// TrustedHeader names a header set by the edge proxy, e.g. CF-Connecting-IP. It wins over X-Forwarded-For.
	TrustedHeader string `mapstructure:"trusted_proxies_header"`

	// TrustedProxiesIP lists the CIDR ranges of every proxy in front of the server.
	// The client is the last X-Forwarded-For entry outside of these ranges.
	TrustedProxiesIP []string `mapstructure:"trusted_proxies_ip"`

	// EnableRejectMalformedRequest answers 403 when the client IP can't be told apart from proxies.
	EnableRejectMalformedRequest bool `mapstructure:"enable_reject_malformed_request"`
}

// WithClientIP resolves the client IP of the request, guarding against spoofed X-Forwarded-For headers.
func WithClientIP(config WithClientIPConfig) Option {
	trusted, err := parseCIDRs(config.TrustedProxiesIP)
	if err != nil {
		logger.Panic("Failed to parse trusted proxies", slogx.Error(err))
	}

	return func(ctx context.Context, c *fiber.Ctx) (context.Context, error) {
		if config.TrustedHeader != "" {
			if ip := c.Get(config.TrustedHeader); net.ParseIP(ip) != nil {
				return context.WithValue(ctx, clientIPKey{}, ip), nil
			}
		}

		forwarded := c.IPs()
		if len(forwarded) == 0 {
			return context.WithValue(ctx, clientIPKey{}, c.IP()), nil
		}

		if len(trusted) > 0 {
			for i := len(forwarded) - 1; i >= 0; i-- {
				if ip := net.ParseIP(forwarded[i]); !isTrusted(trusted, ip) {
					return context.WithValue(ctx, clientIPKey{}, forwarded[i]), nil
				}
			}
			return context.WithValue(ctx, clientIPKey{}, forwarded[0]), nil
		}

		if config.EnableRejectMalformedRequest {
			logger.WarnContext(ctx, "IP spoofing detected, rejecting request",
				slogx.String("event", "requestcontext/ip_spoofing_detected"),
				slogx.String("ip", c.IP()),
				slogx.Any("ips", forwarded),
			)
			return nil, requestcontextError{status: fiber.StatusForbidden, message: "not allowed to access"}
		}
		return context.WithValue(ctx, clientIPKey{}, forwarded[0]), nil
	}
}

// GetClientIP returns the client IP resolved by WithClientIP, or an empty string.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func isTrusted(trusted []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, ipNet := range trusted {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func parseCIDRs(ranges []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(ranges))
	for _, r := range ranges {
		_, ipNet, err := net.ParseCIDR(r)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse CIDR %q", r)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}
