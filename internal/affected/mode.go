// Package affected selects the Nx change-detection mode, runs the affected
// project query and turns its output into a list of project names.
package affected

import (
	"fmt"
	"strings"
)

// Mode is the change-selection mode passed to nx.
type Mode string

const (
	ModeBase        Mode = "base"
	ModeFiles       Mode = "files"
	ModeUncommitted Mode = "uncommitted"
)

// DefaultHead is the head revision used when comparing against a base.
const DefaultHead = "HEAD"

// Options are the raw change-selection inputs collected from flags and config.
type Options struct {
	Base        string
	Head        string
	Files       []string
	Uncommitted bool
	Untracked   bool
}

// Query is a resolved, single-mode affected query.
type Query struct {
	Mode  Mode
	Base  string
	Head  string
	Files []string

	// Ignored lists inputs that lost to a higher-priority mode.
	Ignored []string
}

// SelectMode picks exactly one mode from opts. Priority: base, then files,
// then uncommitted. Uncommitted mode is used whenever neither base nor files
// was supplied, so untracked mode is only honored when uncommitted mode is not
// active. nx rejects base/files combined with uncommitted/untracked, so the
// losing inputs are dropped and reported in Query.Ignored.
func SelectMode(opts Options) Query {
	files := cleanFiles(opts.Files)

	var q Query
	switch {
	case opts.Base != "":
		head := opts.Head
		if head == "" {
			head = DefaultHead
		}
		q = Query{Mode: ModeBase, Base: opts.Base, Head: head}
		if len(files) > 0 {
			q.Ignored = append(q.Ignored, "files")
		}
	case len(files) > 0:
		q = Query{Mode: ModeFiles, Files: files}
	default:
		q = Query{Mode: ModeUncommitted}
	}

	if q.Mode != ModeUncommitted && opts.Uncommitted {
		q.Ignored = append(q.Ignored, "uncommitted")
	}
	if opts.Untracked {
		q.Ignored = append(q.Ignored, "untracked")
	}
	return q
}

// Args returns the nx flags for the query's mode.
func (q Query) Args() []string {
	switch q.Mode {
	case ModeBase:
		return []string{"--base", q.Base, "--head", q.Head}
	case ModeFiles:
		return []string{"--files", strings.Join(q.Files, ",")}
	default:
		return []string{"--uncommitted"}
	}
}

// Describe returns a human-readable summary of what is being compared.
func (q Query) Describe() string {
	switch q.Mode {
	case ModeBase:
		return fmt.Sprintf("Checking affected projects between %s and %s", q.Base, q.Head)
	case ModeFiles:
		return fmt.Sprintf("Checking affected projects for files: %s", strings.Join(q.Files, ", "))
	default:
		return "Checking affected projects for uncommitted changes"
	}
}

// SplitFiles splits a comma-separated file list.
func SplitFiles(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return cleanFiles(strings.Split(s, ","))
}

func cleanFiles(files []string) []string {
	var result []string
	for _, f := range files {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
