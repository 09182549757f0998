package affected

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name        string
		opts        Options
		wantMode    Mode
		wantArgs    []string
		wantIgnored []string
	}{
		{
			name:     "nothing set defaults to uncommitted",
			opts:     Options{},
			wantMode: ModeUncommitted,
			wantArgs: []string{"--uncommitted"},
		},
		{
			name:     "base with default head",
			opts:     Options{Base: "main"},
			wantMode: ModeBase,
			wantArgs: []string{"--base", "main", "--head", "HEAD"},
		},
		{
			name:     "base with explicit head",
			opts:     Options{Base: "origin/main", Head: "abc123"},
			wantMode: ModeBase,
			wantArgs: []string{"--base", "origin/main", "--head", "abc123"},
		},
		{
			name:        "base wins over uncommitted",
			opts:        Options{Base: "main", Uncommitted: true},
			wantMode:    ModeBase,
			wantArgs:    []string{"--base", "main", "--head", "HEAD"},
			wantIgnored: []string{"uncommitted"},
		},
		{
			name:        "base wins over files and untracked",
			opts:        Options{Base: "main", Files: []string{"a.ts"}, Untracked: true},
			wantMode:    ModeBase,
			wantArgs:    []string{"--base", "main", "--head", "HEAD"},
			wantIgnored: []string{"files", "untracked"},
		},
		{
			name:     "files",
			opts:     Options{Files: []string{" apps/web/main.ts ", "", "libs/ui/button.ts"}},
			wantMode: ModeFiles,
			wantArgs: []string{"--files", "apps/web/main.ts,libs/ui/button.ts"},
		},
		{
			name:        "files win over uncommitted",
			opts:        Options{Files: []string{"a.ts"}, Uncommitted: true},
			wantMode:    ModeFiles,
			wantArgs:    []string{"--files", "a.ts"},
			wantIgnored: []string{"uncommitted"},
		},
		{
			name:     "blank files fall through to uncommitted",
			opts:     Options{Files: []string{" ", ""}},
			wantMode: ModeUncommitted,
			wantArgs: []string{"--uncommitted"},
		},
		{
			name:     "uncommitted flag",
			opts:     Options{Uncommitted: true},
			wantMode: ModeUncommitted,
			wantArgs: []string{"--uncommitted"},
		},
		{
			name:        "uncommitted wins over untracked",
			opts:        Options{Uncommitted: true, Untracked: true},
			wantMode:    ModeUncommitted,
			wantArgs:    []string{"--uncommitted"},
			wantIgnored: []string{"untracked"},
		},
		{
			name:        "untracked alone still runs uncommitted",
			opts:        Options{Untracked: true},
			wantMode:    ModeUncommitted,
			wantArgs:    []string{"--uncommitted"},
			wantIgnored: []string{"untracked"},
		},
		{
			name:        "files win over untracked",
			opts:        Options{Files: []string{"a.ts"}, Untracked: true},
			wantMode:    ModeFiles,
			wantArgs:    []string{"--files", "a.ts"},
			wantIgnored: []string{"untracked"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := SelectMode(tt.opts)
			if q.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", q.Mode, tt.wantMode)
			}
			if diff := cmp.Diff(tt.wantArgs, q.Args()); diff != "" {
				t.Errorf("Args() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantIgnored, q.Ignored); diff != "" {
				t.Errorf("Ignored mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectMode_NeverCombines(t *testing.T) {
	bools := []bool{false, true}
	for _, base := range []string{"", "main"} {
		for _, files := range [][]string{nil, {"a.ts"}} {
			for _, uncommitted := range bools {
				for _, untracked := range bools {
					q := SelectMode(Options{Base: base, Files: files, Uncommitted: uncommitted, Untracked: untracked})
					args := strings.Join(q.Args(), " ")

					hasRange := strings.Contains(args, "--base") || strings.Contains(args, "--files")
					hasWorkingTree := strings.Contains(args, "--uncommitted") || strings.Contains(args, "--untracked")
					if hasRange && hasWorkingTree {
						t.Errorf("combined modes for %+v: %s", q, args)
					}
					if strings.Contains(args, "--uncommitted") && strings.Contains(args, "--untracked") {
						t.Errorf("combined uncommitted and untracked: %s", args)
					}
				}
			}
		}
	}
}

func TestQueryDescribe(t *testing.T) {
	tests := []struct {
		q    Query
		want string
	}{
		{Query{Mode: ModeBase, Base: "main", Head: "HEAD"}, "Checking affected projects between main and HEAD"},
		{Query{Mode: ModeFiles, Files: []string{"a.ts", "b.ts"}}, "Checking affected projects for files: a.ts, b.ts"},
		{Query{Mode: ModeUncommitted}, "Checking affected projects for uncommitted changes"},
	}

	for _, tt := range tests {
		t.Run(string(tt.q.Mode), func(t *testing.T) {
			if got := tt.q.Describe(); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitFiles(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"   ", nil},
		{"a.ts", []string{"a.ts"}},
		{"a.ts, b.ts ,c.ts", []string{"a.ts", "b.ts", "c.ts"}},
		{"a.ts,,b.ts,", []string{"a.ts", "b.ts"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SplitFiles(tt.input)); diff != "" {
				t.Errorf("SplitFiles(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}
