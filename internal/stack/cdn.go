package stack

import (
	"strings"

	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/providers/aws"
)

var cdnMethods = []any{"GET", "HEAD", "OPTIONS"}

func (b *builder) cdn() {
	p := b.project
	ttl := p.CDN.TTL
	origin := bucketRef("arn")

	props := map[string]any{
		"enabled": true,
		"comment": p.Name + " static site",
		"origins": []any{
			map[string]any{
				"originId":   origin,
				"domainName": bucketRef("websiteEndpoint"),
				"customOriginConfig": map[string]any{
					"originProtocolPolicy": "http-only",
					"httpPort":             80,
					"httpsPort":            443,
					"originSslProtocols":   []any{"TLSv1.2"},
				},
			},
		},
		"defaultCacheBehavior": map[string]any{
			"targetOriginId":       origin,
			"viewerProtocolPolicy": "redirect-to-https",
			"allowedMethods":       cdnMethods,
			"cachedMethods":        cdnMethods,
			"minTtl":               ttl,
			"defaultTtl":           ttl,
			"maxTtl":               ttl,
			"forwardedValues": map[string]any{
				"queryString": true,
				"cookies":     map[string]any{"forward": "all"},
			},
		},
		"priceClass": p.CDN.PriceClass,
		"customErrorResponses": []any{
			map[string]any{
				"errorCode":        404,
				"responseCode":     404,
				"responsePagePath": "/" + strings.TrimPrefix(p.Site.ErrorDocument, "/"),
			},
		},
		"restrictions": map[string]any{
			"geoRestriction": map[string]any{"restrictionType": "none"},
		},
		"viewerCertificate": map[string]any{"cloudfrontDefaultCertificate": true},
	}

	if p.CDN.CertificateDomain != "" {
		b.add(aws.TypeCertificateLookup, cdnName, map[string]any{
			"domain": p.CDN.CertificateDomain,
		})
		props["viewerCertificate"] = map[string]any{
			"acmCertificateArn":      ir.Ref(aws.TypeCertificateLookup, cdnName, "arn"),
			"sslSupportMethod":       "sni-only",
			"minimumProtocolVersion": "TLSv1.2_2021",
		}
	}
	if len(p.CDN.Aliases) > 0 {
		aliases := make([]any, len(p.CDN.Aliases))
		for i, a := range p.CDN.Aliases {
			aliases[i] = a
		}
		props["aliases"] = aliases
	}

	b.add(aws.TypeDistribution, cdnName, props)

	if p.CDN.HostedZoneID != "" {
		for _, alias := range p.CDN.Aliases {
			b.add(aws.TypeRecordSet, recordName(alias), map[string]any{
				"hostedZoneId": p.CDN.HostedZoneID,
				"name":         alias,
				"type":         "A",
				"aliasTarget": map[string]any{
					"dnsName":              ir.Ref(aws.TypeDistribution, cdnName, "domainName"),
					"hostedZoneId":         ir.Ref(aws.TypeDistribution, cdnName, "hostedZoneId"),
					"evaluateTargetHealth": false,
				},
			})
		}
	}

	b.outputs[OutputCDNURL] = "https://" + ir.Interp(aws.TypeDistribution, cdnName, "domainName")
	b.outputs[OutputCDNHostname] = ir.Ref(aws.TypeDistribution, cdnName, "domainName")
}

// recordName turns a domain into a resource name: www.example.com -> www-example-com.
func recordName(domain string) string {
	return strings.ReplaceAll(strings.Trim(domain, "."), ".", "-")
}
