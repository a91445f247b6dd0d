package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AllowedIPs restricts a route group to loopback clients and a whitelist of
// IPs or CIDR ranges. An empty whitelist means loopback only.
type AllowedIPs struct {
	logger *logrus.Logger
	ips    []net.IP
	nets   []*net.IPNet
}

// NewAllowedIPs parses the whitelist. Unparseable entries are logged and skipped.
func NewAllowedIPs(logger *logrus.Logger, allowed []string) *AllowedIPs {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	a := &AllowedIPs{logger: logger}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.WithFields(logrus.Fields{
					"allowed": entry,
					"error":   err.Error(),
				}).Warn("Invalid CIDR in allowedIPs")
				continue
			}
			a.nets = append(a.nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			logger.WithField("allowed", entry).Warn("Invalid IP in allowedIPs")
			continue
		}
		a.ips = append(a.ips, ip)
	}
	return a
}

// Restrict rejects clients outside the whitelist with IP_NOT_ALLOWED.
func (a *AllowedIPs) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if a.Allowed(clientIP) {
			c.Next()
			return
		}

		a.logger.WithFields(logrus.Fields{
			"client_ip":  clientIP,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"user_agent": c.GetHeader("User-Agent"),
		}).Warn("Reject non-whitelisted access to admin API")

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "This API is only accessible from allowed IP addresses",
			"code":    "IP_NOT_ALLOWED",
		})
	}
}

func (a *AllowedIPs) Allowed(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	for _, allowed := range a.ips {
		if allowed.Equal(parsed) {
			return true
		}
	}
	for _, n := range a.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
