package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/internal/logging"
	"github.com/picklr-io/sitestack/internal/stack"
	"github.com/picklr-io/sitestack/internal/state"
	"github.com/picklr-io/sitestack/providers/aws"
	"github.com/spf13/cobra"
)

var (
	syncWatch    bool
	syncDebounce time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload the site folder to the deployed bucket",
	Long: `Uploads changed site files to the bucket created by 'sitestack apply' and
removes objects whose files were deleted. Nothing else is touched.

With --watch the folder is watched and synced again after every change.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "Keep watching the site folder and sync on change")
	syncCmd.Flags().DurationVar(&syncDebounce, "debounce", 500*time.Millisecond, "Quiet period before a watched change is synced")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ws, err := openWorkspace(ctx, nil, false)
	if err != nil {
		return err
	}
	if err := syncSite(ctx, out, ws); err != nil {
		return err
	}
	if !syncWatch {
		return nil
	}

	root := ws.project.Resolve(ws.project.Site.Path)
	fmt.Fprintf(out, "\nWatching %s for changes... (Ctrl+C to stop)\n", root)
	return watchDir(ctx, root, syncDebounce, func() {
		fmt.Fprintf(out, "\n[%s] Change detected, syncing...\n", time.Now().Format("15:04:05"))
		if err := syncSite(ctx, out, ws); err != nil {
			fmt.Fprintf(out, "%sSync failed: %v%s\n", colorize(colorRed), err, colorize(colorReset))
		}
	})
}

// syncSite plans and applies the site folder resource alone. The bucket it
// targets must already be recorded in state.
func syncSite(ctx context.Context, out io.Writer, ws *workspace) error {
	cfg, err := stack.Build(ws.project)
	if err != nil {
		return fmt.Errorf("failed to build resources: %w", err)
	}
	folder := findResource(cfg, aws.TypeBucketFolder)
	if folder == nil {
		return fmt.Errorf("project declares no site folder")
	}
	addr := folder.Address()

	return state.WithLock(ctx, ws.backend, func() error {
		current, err := ws.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
		if current.Find(addr) == nil {
			return fmt.Errorf("site has not been deployed yet, run 'sitestack apply' first")
		}

		plan, err := ws.engine.CreatePlanWithTargets(ctx, cfg, current, []string{addr})
		if err != nil {
			return fmt.Errorf("plan generation failed: %w", err)
		}
		if len(plan.Changes) == 0 {
			fmt.Fprintln(out, "Site is up-to-date.")
			return nil
		}

		newState, applyErr := ws.engine.ApplyPlanWithCallback(ctx, plan, current, progressPrinter(out))
		if newState != nil {
			if err := ws.backend.Write(ctx, newState); err != nil && applyErr == nil {
				return fmt.Errorf("failed to write state: %w", err)
			}
		}
		if applyErr != nil {
			return fmt.Errorf("sync failed: %w", applyErr)
		}

		if res := newState.Find(addr); res != nil {
			fmt.Fprintf(out, "Synced %v objects to s3://%v\n", res.Outputs["objectCount"], res.Outputs["bucket"])
		}
		return nil
	})
}

func findResource(cfg *ir.Config, typ string) *ir.Resource {
	for _, res := range cfg.Resources {
		if res.Type == typ {
			return res
		}
	}
	return nil
}

// watchDir calls onChange once root has been quiet for debounce after a
// change. It returns when ctx is done.
func watchDir(ctx context.Context, root string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := addDirRecursive(watcher, root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	var debounceTimer *time.Timer
	changed := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Chmod) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			// New directories are not covered by the existing watches.
			if event.Op.Has(fsnotify.Create) {
				if err := addDirRecursive(watcher, event.Name); err != nil {
					logging.Debug("not watching new path", "path", event.Name, "error", err)
				}
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})

		case <-changed:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watch error", "error", err)

		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil
		}
	}
}

// addDirRecursive adds path and every directory below it to the watcher.
// Files are ignored.
func addDirRecursive(watcher *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(p)
	})
}
