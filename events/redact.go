package events

import (
	"net/url"
	"strings"
)

// #nosec G101 -- placeholder, not a credential
const redactedBrokerURL = "amqp://****:****@<host>:<port>/<vhost>"

// redactURL masks the password of an AMQP URL for logging. The username,
// host, vhost and query survive. Anything that does not parse as an AMQP URL
// becomes a placeholder.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if raw == "" || err != nil || u.Host == "" || (u.Scheme != "amqp" && u.Scheme != "amqps") {
		return redactedBrokerURL
	}

	user := "****"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}

	// Built by hand so the asterisks are not percent-encoded.
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(user)
	b.WriteString(":****@")
	b.WriteString(u.Host)
	if u.RawPath != "" {
		b.WriteString(u.RawPath)
	} else {
		b.WriteString(u.Path)
	}
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	return b.String()
}
