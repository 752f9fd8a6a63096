package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Override sets scalar fields from dotted keys, e.g. "api.style=http".
func (p *Project) Override(props map[string]string) error {
	for key, value := range props {
		if err := p.set(key, value); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
	}
	return nil
}

func (p *Project) set(key, value string) error {
	switch strings.ToLower(key) {
	case "name":
		p.Name = value
	case "region":
		p.Region = value
	case "readme":
		p.Readme = value
	case "site.path":
		p.Site.Path = value
	case "site.indexdocument":
		p.Site.IndexDocument = value
	case "site.errordocument":
		p.Site.ErrorDocument = value
	case "site.acl":
		p.Site.ACL = value
	case "site.objectownership":
		p.Site.ObjectOwnership = value
	case "site.blockpublicacls":
		return setBool(&p.Site.BlockPublicAcls, value)
	case "cdn.enabled":
		var b bool
		if err := setBool(&b, value); err != nil {
			return err
		}
		p.CDN.Enabled = &b
	case "cdn.ttl":
		return setInt(&p.CDN.TTL, value)
	case "cdn.priceclass":
		p.CDN.PriceClass = value
	case "cdn.certificatedomain":
		p.CDN.CertificateDomain = value
	case "cdn.hostedzoneid":
		p.CDN.HostedZoneID = value
	case "role.name":
		p.Role.Name = value
	case "api.style":
		p.API.Style = value
	case "api.stagename":
		p.API.StageName = value
	case "api.cors":
		return setBool(&p.API.CORS, value)
	case "api.payloadformatversion":
		p.API.PayloadFormatVersion = value
	case "api.timeoutmillis":
		return setInt(&p.API.TimeoutMillis, value)
	case "backend.type":
		p.Backend.Type = value
	case "backend.bucket":
		p.Backend.Bucket = value
	case "backend.key":
		p.Backend.Key = value
	default:
		return fmt.Errorf("unknown property")
	}
	return nil
}

func setBool(field *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	*field = b
	return nil
}

func setInt(field *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*field = n
	return nil
}
