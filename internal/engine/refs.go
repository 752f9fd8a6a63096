package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/picklr-io/sitestack/pkg/provider"
)

const ptrPrefix = "ptr://"

// embeddedRef matches ${ptr://type/name/attr} inside a larger string.
var embeddedRef = regexp.MustCompile(`\$\{(ptr://[^}]+)\}`)

// extractPtrRefs extracts all ptr:// references from a property value.
func extractPtrRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, ptrPrefix) {
			refs = append(refs, val)
		}
		for _, m := range embeddedRef.FindAllStringSubmatch(val, -1) {
			refs = append(refs, m[1])
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	}
	return refs
}

// parsePtrRef splits ptr://aws:S3.Bucket/site/arn into its address and attribute.
func parsePtrRef(ref string) (addr, attr string, ok bool) {
	if !strings.HasPrefix(ref, ptrPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(ref[len(ptrPrefix):], "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0] + "." + parts[1], parts[2], true
}

// ptrRefToAddr converts a ptr:// reference to a resource address.
func ptrRefToAddr(ref string) string {
	addr, _, ok := parsePtrRef(ref)
	if !ok {
		return ""
	}
	return addr
}

// lookupFunc returns the value of attr on the resource at addr.
type lookupFunc func(addr, attr string) (any, bool)

// resolveReferences replaces every reference in val with the value lookup
// returns for it. A whole-string reference keeps the type of the value.
func resolveReferences(val any, lookup lookupFunc) (any, error) {
	switch v := val.(type) {
	case string:
		if strings.HasPrefix(v, ptrPrefix) {
			addr, attr, ok := parsePtrRef(v)
			if !ok {
				return nil, fmt.Errorf("malformed reference %q", v)
			}
			out, found := lookup(addr, attr)
			if !found {
				return nil, fmt.Errorf("unresolved reference %s", v)
			}
			return out, nil
		}
		var firstErr error
		resolved := embeddedRef.ReplaceAllStringFunc(v, func(m string) string {
			ref := embeddedRef.FindStringSubmatch(m)[1]
			addr, attr, ok := parsePtrRef(ref)
			if !ok {
				if firstErr == nil {
					firstErr = fmt.Errorf("malformed reference %q", ref)
				}
				return m
			}
			out, found := lookup(addr, attr)
			if !found {
				if firstErr == nil {
					firstErr = fmt.Errorf("unresolved reference %s", ref)
				}
				return m
			}
			return fmt.Sprint(out)
		})
		return resolved, firstErr
	case map[string]any:
		newMap := make(map[string]any, len(v))
		for k, item := range v {
			r, err := resolveReferences(item, lookup)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			newMap[k] = r
		}
		return newMap, nil
	case []any:
		newSlice := make([]any, len(v))
		for i, item := range v {
			r, err := resolveReferences(item, lookup)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			newSlice[i] = r
		}
		return newSlice, nil
	default:
		return v, nil
	}
}

// markUnknown replaces references to the addresses in pending with
// provider.Unknown, so a diff sees them as changed.
func markUnknown(val any, pending map[string]bool) any {
	switch v := val.(type) {
	case string:
		if addr := ptrRefToAddr(v); addr != "" && pending[addr] {
			return provider.Unknown
		}
		return embeddedRef.ReplaceAllStringFunc(v, func(m string) string {
			if pending[ptrRefToAddr(embeddedRef.FindStringSubmatch(m)[1])] {
				return provider.Unknown
			}
			return m
		})
	case map[string]any:
		newMap := make(map[string]any, len(v))
		for k, item := range v {
			newMap[k] = markUnknown(item, pending)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(v))
		for i, item := range v {
			newSlice[i] = markUnknown(item, pending)
		}
		return newSlice
	default:
		return v
	}
}
