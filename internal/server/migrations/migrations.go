// Package migrations embeds the forum schema scripts.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophforum/internal/dbx"
)

//go:embed *.sql
var Migrations embed.FS

// List returns the embedded scripts ordered by file name. The ledger key is
// the file name without its .sql extension.
func List() ([]dbx.Migration, error) {
	return load(Migrations)
}

func load(fsys fs.FS) ([]dbx.Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	list := make([]dbx.Migration, 0, len(names))
	for _, name := range names {
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		list = append(list, dbx.Migration{
			Name:   strings.TrimSuffix(path.Base(name), ".sql"),
			Script: string(script),
		})
	}
	return list, nil
}
