package importer

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// discoverTxtFiles walks root recursively and returns every *.txt file
// in deterministic (sorted) order — the Go equivalent of
// discover_txt_files's Path.rglob("*.txt").
func discoverTxtFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
