package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/picklr-io/sitestack/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new sitestack project",
	Long: `Creates a project file and a starter site folder. Existing files are
left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

const projectTemplate = `# sitestack project
name: %s
region: us-east-1

site:
  path: ./www
  indexDocument: index.html
  errorDocument: error.html

cdn:
  ttl: 600

# functions:
#   - name: hello
#     handler: get
#     source: ./bin/handler
#     route:
#       path: /hello
#       method: GET

api:
  style: managed
  stageName: prod
`

const indexTemplate = `<!DOCTYPE html>
<html>
  <head><title>%s</title></head>
  <body><h1>Hello from %s</h1></body>
</html>
`

const errorTemplate = `<!DOCTYPE html>
<html>
  <head><title>Not found</title></head>
  <body><h1>Page not found</h1></body>
</html>
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := scaffold(cmd.OutOrStdout(), dir); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nSitestack initialized successfully!")
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Edit %s to describe your site and functions\n", config.DefaultFile)
	fmt.Fprintln(out, "  2. Run 'sitestack plan' to see what will be created")
	fmt.Fprintln(out, "  3. Run 'sitestack apply' to deploy")
	return nil
}

var nonName = regexp.MustCompile(`[^a-z0-9-]+`)

// scaffold writes the starter files under dir, skipping those that exist.
func scaffold(w io.Writer, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	name := strings.Trim(nonName.ReplaceAllString(strings.ToLower(filepath.Base(abs)), "-"), "-")
	if name == "" {
		name = "site"
	}

	files := []struct {
		path    string
		content string
	}{
		{config.DefaultFile, fmt.Sprintf(projectTemplate, name)},
		{filepath.Join("www", "index.html"), fmt.Sprintf(indexTemplate, name, name)},
		{filepath.Join("www", "error.html"), errorTemplate},
		{".gitignore", ".sitestack/\nbuild/\n"},
	}

	for _, f := range files {
		path := filepath.Join(abs, f.path)
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(w, "Skipped %s (exists)\n", f.path)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(f.path), err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", f.path, err)
		}
		fmt.Fprintf(w, "Created %s\n", f.path)
	}
	return nil
}
