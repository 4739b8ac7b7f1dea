package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discover walks the immediate subdirectories of root and loads every one
// containing a SKILL.md. A broken bundle is reported in the returned error
// slice and never aborts discovery of its siblings. Bundles are returned in
// directory-name order.
func Discover(root string) ([]*Bundle, []error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, []error{fmt.Errorf("read skills dir %s: %w", root, err)}
	}

	var (
		bundles []*Bundle
		errs    []error
	)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, manifestFilename)); err != nil {
			continue
		}
		b, err := LoadBundle(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("bundle %s: %w", entry.Name(), err))
			continue
		}
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].Dir < bundles[j].Dir })
	return bundles, errs
}
