package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly only allow localhost or whitelisted IPs access.
// Relies on gin's ClientIP, so trusted proxies must be set on the engine.
type LocalhostOnly struct {
	logger   *logrus.Logger
	allowed  []net.IP
	networks []*net.IPNet
}

// NewLocalhostOnly allowedIPs holds plain IPs or CIDR ranges; invalid entries are skipped
func NewLocalhostOnly(logger *logrus.Logger, allowedIPs []string) *LocalhostOnly {
	l := &LocalhostOnly{logger: logger}
	for _, entry := range allowedIPs {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.WithField("allowed", entry).WithError(err).Warn("Invalid CIDR in allowedIPs")
				continue
			}
			l.networks = append(l.networks, ipNet)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			l.allowed = append(l.allowed, ip)
		} else {
			logger.WithField("allowed", entry).Warn("Invalid IP in allowedIPs")
		}
	}
	return l
}

// Restrict rejects every request whose client IP is not allowed
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !l.isAllowedIP(clientIP) {
			l.logger.WithFields(logrus.Fields{
				"client_ip":   clientIP,
				"remote_addr": c.Request.RemoteAddr,
				"path":        c.Request.URL.Path,
				"method":      c.Request.Method,
			}).Warn("Reject non-whitelisted access to sensitive API")

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "This API is only accessible from allowed IP addresses",
				"code":    "IP_NOT_ALLOWED",
			})
			return
		}
		c.Next()
	}
}

// isAllowedIP localhost always passes
func (l *LocalhostOnly) isAllowedIP(ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}
	if parsedIP.IsLoopback() {
		return true
	}
	for _, allowed := range l.allowed {
		if allowed.Equal(parsedIP) {
			return true
		}
	}
	for _, ipNet := range l.networks {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}
	return false
}
