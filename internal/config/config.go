// Package config loads the sitestack project file.
package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/picklr-io/sitestack/internal/eval"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the project file looked up when none is given.
const DefaultFile = "sitestack.yaml"

const (
	StyleManaged = "managed"
	StyleRest    = "rest"
	StyleHTTP    = "http"
)

// Project is the user-facing description of a deployment.
type Project struct {
	Name      string     `yaml:"name" pkl:"name"`
	Region    string     `yaml:"region" pkl:"region"`
	Site      Site       `yaml:"site" pkl:"site"`
	CDN       CDN        `yaml:"cdn" pkl:"cdn"`
	Role      Role       `yaml:"role" pkl:"role"`
	Functions []Function `yaml:"functions" pkl:"functions"`
	API       API        `yaml:"api" pkl:"api"`
	Readme    string     `yaml:"readme" pkl:"readme"`
	Backend   Backend    `yaml:"backend" pkl:"backend"`

	// Dir is the directory of the project file. Relative paths resolve against it.
	Dir string `yaml:"-" pkl:"-"`
}

type Site struct {
	Path            string `yaml:"path" pkl:"path"`
	IndexDocument   string `yaml:"indexDocument" pkl:"indexDocument"`
	ErrorDocument   string `yaml:"errorDocument" pkl:"errorDocument"`
	ACL             string `yaml:"acl" pkl:"acl"`
	ObjectOwnership string `yaml:"objectOwnership" pkl:"objectOwnership"`
	BlockPublicAcls bool   `yaml:"blockPublicAcls" pkl:"blockPublicAcls"`
}

type CDN struct {
	Enabled           *bool    `yaml:"enabled" pkl:"enabled"`
	TTL               int      `yaml:"ttl" pkl:"ttl"`
	PriceClass        string   `yaml:"priceClass" pkl:"priceClass"`
	Aliases           []string `yaml:"aliases" pkl:"aliases"`
	CertificateDomain string   `yaml:"certificateDomain" pkl:"certificateDomain"`
	HostedZoneID      string   `yaml:"hostedZoneId" pkl:"hostedZoneId"`
}

// IsEnabled reports whether a distribution should be declared.
func (c CDN) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type Role struct {
	Name                 string `yaml:"name" pkl:"name"`
	AttachBasicExecution *bool  `yaml:"attachBasicExecution" pkl:"attachBasicExecution"`
}

func (r Role) AttachesBasicExecution() bool {
	return r.AttachBasicExecution == nil || *r.AttachBasicExecution
}

type Function struct {
	Name             string            `yaml:"name" pkl:"name"`
	Handler          string            `yaml:"handler" pkl:"handler"`
	Source           string            `yaml:"source" pkl:"source"`
	Archive          string            `yaml:"archive" pkl:"archive"`
	Runtime          string            `yaml:"runtime" pkl:"runtime"`
	Environment      map[string]string `yaml:"environment" pkl:"environment"`
	LogRetentionDays int               `yaml:"logRetentionDays" pkl:"logRetentionDays"`
	Route            *Route            `yaml:"route" pkl:"route"`
}

type Route struct {
	Path   string `yaml:"path" pkl:"path"`
	Method string `yaml:"method" pkl:"method"`
}

type API struct {
	Style                string `yaml:"style" pkl:"style"`
	StageName            string `yaml:"stageName" pkl:"stageName"`
	CORS                 bool   `yaml:"cors" pkl:"cors"`
	PayloadFormatVersion string `yaml:"payloadFormatVersion" pkl:"payloadFormatVersion"`
	TimeoutMillis        int    `yaml:"timeoutMillis" pkl:"timeoutMillis"`
	AutoDeploy           *bool  `yaml:"autoDeploy" pkl:"autoDeploy"`
}

func (a API) AutoDeploys() bool {
	return a.AutoDeploy == nil || *a.AutoDeploy
}

type Backend struct {
	Type          string `yaml:"type" pkl:"type"`
	Bucket        string `yaml:"bucket" pkl:"bucket"`
	Key           string `yaml:"key" pkl:"key"`
	Region        string `yaml:"region" pkl:"region"`
	DynamoDBTable string `yaml:"dynamodbTable" pkl:"dynamodbTable"`
	Encrypt       bool   `yaml:"encrypt" pkl:"encrypt"`
}

// Load reads the project file at path, applies property overrides and fills
// in defaults. The file is evaluated as Pkl when it ends in .pkl, in which
// case props are passed to the evaluator instead.
func Load(ctx context.Context, path string, props map[string]string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	var p Project
	if strings.EqualFold(filepath.Ext(abs), ".pkl") {
		ev := eval.NewEvaluator(filepath.Dir(abs))
		if err := ev.Evaluate(ctx, abs, props, &p); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read project file: %w", err)
		}
		if err := Parse(data, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// Pkl modules read properties themselves.
		if err := p.Override(props); err != nil {
			return nil, err
		}
	}

	p.Dir = filepath.Dir(abs)
	p.ApplyDefaults()
	return &p, nil
}

// Parse decodes YAML project data. Unknown keys are rejected.
func Parse(data []byte, p *Project) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("failed to parse project: %w", err)
	}
	return nil
}

// ApplyDefaults fills every unset field with its default value.
func (p *Project) ApplyDefaults() {
	setDefault(&p.Region, "us-east-1")

	setDefault(&p.Site.Path, "./www")
	setDefault(&p.Site.IndexDocument, "index.html")
	setDefault(&p.Site.ErrorDocument, "error.html")
	setDefault(&p.Site.ACL, "public-read")
	setDefault(&p.Site.ObjectOwnership, "ObjectWriter")

	if p.CDN.TTL == 0 {
		p.CDN.TTL = 600
	}
	setDefault(&p.CDN.PriceClass, "PriceClass_100")

	setDefault(&p.Role.Name, "iamForLambda")

	for i := range p.Functions {
		fn := &p.Functions[i]
		setDefault(&fn.Runtime, "provided.al2023")
		setDefault(&fn.Archive, filepath.Join("build", fn.Name+".zip"))
		if fn.Route != nil {
			fn.Route.Method = strings.ToUpper(fn.Route.Method)
		}
	}

	setDefault(&p.API.Style, StyleManaged)
	setDefault(&p.API.StageName, "prod")
	setDefault(&p.API.PayloadFormatVersion, "1.0")
	if p.API.TimeoutMillis == 0 {
		p.API.TimeoutMillis = 30000
	}

	setDefault(&p.Backend.Type, "local")
	setDefault(&p.Backend.Key, "sitestack/"+p.Name+"/state.json")
	setDefault(&p.Backend.Region, p.Region)
}

// Resolve returns path relative to the project directory unless it is absolute.
func (p *Project) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.Dir == "" {
		return path
	}
	return filepath.Join(p.Dir, path)
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
