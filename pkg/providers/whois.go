package providers

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// WhoisConfig holds settings for the WHOIS client.
type WhoisConfig struct {
	Server  string        `yaml:"server"`
	Timeout time.Duration `yaml:"timeout"`
}

// Whois is a WhoisProvider speaking the plain-text WHOIS protocol
// against a configurable server (IANA referral server by default).
type Whois struct {
	log     logrus.FieldLogger
	server  string
	timeout time.Duration
}

// NewWhois creates the WHOIS client.
func NewWhois(log logrus.FieldLogger, cfg WhoisConfig) *Whois {
	server := cfg.Server
	if server == "" {
		server = "whois.iana.org:43"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Whois{
		log:     log.WithField("component", "whois_provider"),
		server:  server,
		timeout: timeout,
	}
}

// Name implements Provider.
func (w *Whois) Name() string { return "whois" }

// Whois implements WhoisProvider.
func (w *Whois) Whois(ctx context.Context, query string) (*WhoisRecord, error) {
	dialer := &net.Dialer{Timeout: w.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", w.server)
	if err != nil {
		return nil, fmt.Errorf("whois: connecting to %s: %w", w.server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(w.timeout))
	}

	if _, err := fmt.Fprintf(conn, "%s\r\n", query); err != nil {
		return nil, fmt.Errorf("whois: sending query: %w", err)
	}

	record := &WhoisRecord{Query: query}
	var raw strings.Builder

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		raw.WriteString(line + "\n")

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "registrar", "organisation":
			if record.Registrar == "" {
				record.Registrar = value
			}
		case "creation date", "created":
			if record.Created == "" {
				record.Created = value
			}
		case "registry expiry date", "expires":
			if record.Expires == "" {
				record.Expires = value
			}
		case "name server", "nserver":
			if record.NameServer == "" {
				record.NameServer = value
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("whois: reading response: %w", err)
	}

	record.Raw = raw.String()

	return record, nil
}
