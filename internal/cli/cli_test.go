package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/picklr-io/sitestack/internal/config"
	"github.com/picklr-io/sitestack/internal/engine"
	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := noColor
	noColor = true
	t.Cleanup(func() { noColor = prev })
}

func TestColorize(t *testing.T) {
	// When noColor is false, colorize should return the code
	noColor = false
	assert.Equal(t, "\033[31m", colorize("\033[31m"))

	// When noColor is true, colorize should return empty string
	noColor = true
	assert.Equal(t, "", colorize("\033[31m"))

	// Reset
	noColor = false
}

func TestScaffold(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "My Site")
	var out bytes.Buffer
	require.NoError(t, scaffold(&out, dir))
	assert.Contains(t, out.String(), "Created "+config.DefaultFile)

	p, err := config.Load(context.Background(), filepath.Join(dir, config.DefaultFile), nil)
	require.NoError(t, err)
	assert.Equal(t, "my-site", p.Name)
	require.NoError(t, p.Validate())
	assert.FileExists(t, filepath.Join(dir, "www", "index.html"))
	assert.FileExists(t, filepath.Join(dir, "www", "error.html"))

	// A second run keeps edited files.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "www", "index.html"), []byte("edited"), 0o644))
	out.Reset()
	require.NoError(t, scaffold(&out, dir))
	assert.Contains(t, out.String(), "Skipped "+filepath.Join("www", "index.html"))
	data, err := os.ReadFile(filepath.Join(dir, "www", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "edited", string(data))
}

func TestPlanDryRun(t *testing.T) {
	withoutColor(t)
	dir := t.TempDir()
	require.NoError(t, scaffold(&bytes.Buffer{}, dir))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"plan", "--dry-run", "-c", filepath.Join(dir, config.DefaultFile)})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		planDryRun = false
		configFile = config.DefaultFile
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `+ resource "aws:S3.Bucket" "site"`)
	assert.Contains(t, out.String(), `resource "aws:CloudFront.Distribution" "cdn"`)
	assert.Contains(t, out.String(), "to add")
}

func TestRenderGraph(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "memory:Bucket", Name: "site", Provider: "memory"},
		{Type: "memory:Folder", Name: "site", Provider: "memory", DependsOn: []string{"memory:Bucket.site"}},
	}

	t.Run("dot", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, renderGraph(&out, resources, "dot"))
		s := out.String()
		assert.True(t, strings.HasPrefix(s, "digraph"))
		assert.Contains(t, s, "memory:Bucket.site")
		assert.Contains(t, s, "memory:Folder.site")
		assert.Contains(t, s, "->")
	})

	t.Run("mermaid", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, renderGraph(&out, resources, "mermaid"))
		assert.Contains(t, out.String(), "-->")
	})

	t.Run("unknown format", func(t *testing.T) {
		err := renderGraph(&bytes.Buffer{}, resources, "svg")
		assert.ErrorContains(t, err, "unknown graph format")
	})
}

func TestInvokeHandler(t *testing.T) {
	tests := []struct {
		name       string
		handler    string
		event      string
		wantStatus int
		wantBody   string
		wantErr    string
	}{
		{name: "get without event", handler: "get", wantStatus: http.StatusOK, wantBody: "Hello from Lambdaland"},
		{name: "entry point form", handler: "main.get", wantStatus: http.StatusOK},
		{
			name:       "post echoes fields",
			handler:    "post",
			event:      `{"httpMethod":"POST","body":"{\"bodyId\":7,\"type\":\"debit\",\"amount\":\"12.50\"}"}`,
			wantStatus: http.StatusOK,
			wantBody:   `"bodyID":7`,
		},
		{name: "post without body", handler: "post", event: `{"httpMethod":"POST"}`, wantStatus: http.StatusBadRequest},
		{name: "options", handler: "options", wantStatus: http.StatusNoContent},
		{
			name:       "options with http api event",
			handler:    "options",
			event:      `{"version":"2.0","requestContext":{"timeEpoch":1700000000000,"http":{"method":"OPTIONS","userAgent":"curl/8.4.0"}}}`,
			wantStatus: http.StatusNoContent,
			wantBody:   `"agent":"curl/8.4.0"`,
		},
		{name: "unknown handler", handler: "delete", wantErr: "unknown handler"},
		{name: "malformed event", handler: "get", event: `{`, wantErr: "failed to decode event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := invokeHandler(context.Background(), tt.handler, []byte(tt.event))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				assert.Contains(t, resp.Body, tt.wantBody)
			}
		})
	}
}

func TestWriteOutputs(t *testing.T) {
	outputs := map[string]any{
		"originURL": "http://site-abc.s3-website-us-east-1.amazonaws.com",
		"apiURL":    "https://abc.execute-api.us-east-1.amazonaws.com/prod/",
	}

	tests := []struct {
		name    string
		outputs map[string]any
		key     string
		asJSON  bool
		want    string
		wantErr string
	}{
		{
			name:    "all sorted",
			outputs: outputs,
			want:    "apiURL = https://abc.execute-api.us-east-1.amazonaws.com/prod/\noriginURL = http://site-abc.s3-website-us-east-1.amazonaws.com\n",
		},
		{name: "single raw", outputs: outputs, key: "apiURL", want: "https://abc.execute-api.us-east-1.amazonaws.com/prod/\n"},
		{name: "single json", outputs: outputs, key: "apiURL", asJSON: true, want: "\"https://abc.execute-api.us-east-1.amazonaws.com/prod/\"\n"},
		{name: "empty json", asJSON: true, want: "{}\n"},
		{name: "empty", want: "No outputs. Run 'sitestack apply' first.\n"},
		{name: "missing", outputs: outputs, key: "cdnURL", wantErr: `output "cdnURL" not found`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := writeOutputs(&out, tt.outputs, tt.key, tt.asJSON)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestPrintOutputs_ReadmeLast(t *testing.T) {
	withoutColor(t)
	var out bytes.Buffer
	printOutputs(&out, map[string]any{
		"readme":  "# Demo\n\nSome notes.",
		"cdnURL":  "https://d111.cloudfront.net",
		"zzCount": 3,
	})
	s := out.String()
	assert.Contains(t, s, "cdnURL = https://d111.cloudfront.net\n")
	assert.Contains(t, s, "zzCount = 3\n")
	assert.Greater(t, strings.Index(s, "readme:"), strings.Index(s, "zzCount"))
}

func TestRenderPlanChanges(t *testing.T) {
	withoutColor(t)
	plan := &ir.Plan{
		Changes: []*ir.ResourceChange{
			{
				Address: "aws:S3.BucketFolder.site",
				Action:  "CREATE",
				Desired: &ir.Resource{
					Type: "aws:S3.BucketFolder",
					Name: "site",
					Properties: map[string]any{
						"bucket": "ptr://aws:S3.Bucket/site/bucket",
						"acl":    "public-read",
					},
				},
			},
			{
				Address: "aws:CloudFront.Distribution.cdn",
				Action:  "UPDATE",
				Desired: &ir.Resource{Type: "aws:CloudFront.Distribution", Name: "cdn"},
				Diff: map[string]*ir.PropertyDiff{
					"defaultTtl": {Before: 600, After: 60, Action: "update"},
				},
			},
		},
		Summary: &ir.PlanSummary{Create: 1, Update: 1},
	}

	var out bytes.Buffer
	renderPlanChanges(&out, plan)
	renderPlanSummary(&out, plan)
	s := out.String()

	assert.Contains(t, s, "# aws:S3.BucketFolder.site will be created")
	assert.Contains(t, s, `+ acl = "public-read"`)
	assert.Contains(t, s, "+ bucket = (known after apply)")
	assert.Contains(t, s, "~ defaultTtl = 600 -> 60")
	assert.Contains(t, s, "Plan: 1 to add, 1 to change, 0 to replace, 0 to destroy.")
	assert.NotContains(t, s, "\033[")
}

func TestProgressPrinter(t *testing.T) {
	withoutColor(t)
	var out bytes.Buffer
	p := progressPrinter(&out)

	p(engine.ApplyEvent{Address: "aws:S3.Bucket.site", Action: "CREATE", Status: "started"})
	p(engine.ApplyEvent{Address: "aws:S3.Bucket.site", Action: "CREATE", Status: "completed", Duration: 2 * time.Second})
	p(engine.ApplyEvent{Address: "aws:Lambda.Function.get", Action: "UPDATE", Status: "failed", Error: errors.New("throttled")})

	assert.Equal(t,
		"aws:S3.Bucket.site: Creating...\n"+
			"aws:S3.Bucket.site: Creating complete after 2s\n"+
			"aws:Lambda.Function.get: Modifying failed: throttled\n",
		out.String())
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &bytes.Buffer{}, "Proceed?"))
		})
	}
}

func TestRemoveResource(t *testing.T) {
	s := &ir.State{Resources: []*ir.ResourceState{
		{Type: "aws:S3.Bucket", Name: "site"},
		{Type: "aws:S3.BucketFolder", Name: "site"},
	}}

	require.NoError(t, removeResource(s, "aws:S3.BucketFolder.site"))
	require.Len(t, s.Resources, 1)
	assert.Equal(t, "aws:S3.Bucket.site", s.Resources[0].Address())

	assert.ErrorContains(t, removeResource(s, "aws:S3.BucketFolder.site"), "not found")
}

func TestFindResource(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "aws:S3.Bucket", Name: "site"},
		{Type: "aws:S3.BucketFolder", Name: "site"},
	}}
	res := findResource(cfg, "aws:S3.BucketFolder")
	require.NotNil(t, res)
	assert.Equal(t, "site", res.Name)
	assert.Nil(t, findResource(cfg, "aws:Lambda.Function"))
}
