package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ValidationError describes one problem with a project field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var knownHandlers = map[string]bool{"get": true, "post": true, "options": true}

var functionName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Validate reports every problem in the project at once.
func (p *Project) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if p.Name == "" {
		add("name", "is required")
	}

	switch p.API.Style {
	case StyleManaged, StyleRest, StyleHTTP:
	default:
		add("api.style", "unknown style %q (want managed, rest or http)", p.API.Style)
	}
	if p.API.PayloadFormatVersion != "1.0" && p.API.PayloadFormatVersion != "2.0" {
		add("api.payloadFormatVersion", "must be 1.0 or 2.0")
	}
	if p.API.TimeoutMillis < 50 || p.API.TimeoutMillis > 30000 {
		add("api.timeoutMillis", "must be between 50 and 30000")
	}

	if p.CDN.TTL < 0 {
		add("cdn.ttl", "must not be negative")
	}
	if p.CDN.HostedZoneID != "" && len(p.CDN.Aliases) == 0 {
		add("cdn.hostedZoneId", "requires at least one alias")
	}
	if len(p.CDN.Aliases) > 0 && p.CDN.CertificateDomain == "" {
		add("cdn.aliases", "require cdn.certificateDomain")
	}

	if info, err := os.Stat(p.Resolve(p.Site.Path)); err != nil {
		add("site.path", "%v", err)
	} else if !info.IsDir() {
		add("site.path", "%s is not a directory", p.Site.Path)
	}

	seen := make(map[string]bool)
	routes := make(map[string]string)
	for i, fn := range p.Functions {
		prefix := fmt.Sprintf("functions[%d]", i)
		if !functionName.MatchString(fn.Name) {
			add(prefix+".name", "invalid function name %q", fn.Name)
		}
		if seen[fn.Name] {
			add(prefix+".name", "duplicate function name %q", fn.Name)
		}
		seen[fn.Name] = true

		if !knownHandlers[fn.Handler] {
			add(prefix+".handler", "unknown handler %q (want get, post or options)", fn.Handler)
		}
		if fn.Source == "" {
			add(prefix+".source", "is required")
		}
		if fn.Route != nil {
			if fn.Route.Path == "" || fn.Route.Path[0] != '/' {
				add(prefix+".route.path", "must start with /")
			}
			if fn.Route.Method == "" {
				add(prefix+".route.method", "is required")
			}
			// the stack trims slashes, so /items and /items/ are one resource
			key := fn.Route.Method + " /" + strings.Trim(fn.Route.Path, "/")
			if other, ok := routes[key]; ok {
				add(prefix+".route", "%s is already bound to %s", key, other)
			}
			routes[key] = fn.Name
		}
	}

	switch p.Backend.Type {
	case "local":
	case "s3":
		if p.Backend.Bucket == "" {
			add("backend.bucket", "is required for the s3 backend")
		}
	default:
		add("backend.type", "unknown backend %q", p.Backend.Type)
	}

	return errors.Join(errs...)
}
