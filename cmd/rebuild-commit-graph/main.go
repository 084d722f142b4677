// Command rebuild-commit-graph is a debug helper: it consumes a
// parent-DAG dump and writes objects/info/commit-graph directly,
// without walking any pack or loose object (spec.md §6 "CLI
// surface"). It is not part of the core's normal write path; it
// exists for recovering or regenerating the acceleration structure
// when the usual incremental writer isn't available.
//
// Parent-DAG dump format, one commit per line:
//
//	<commit-oid> <tree-oid> <unix-seconds> [<parent-oid>[,<parent-oid>...]]
//
// Lines may appear in any order; the tool topologically sorts them
// before computing generation numbers, since Writer.ComputeGenerations
// requires parents added before children.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/format/commitgraph"
)

type parsedCommit struct {
	id      gitstore.ObjectID
	tree    gitstore.ObjectID
	when    time.Time
	parents []gitstore.ObjectID
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rebuild-commit-graph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	gitDir := fs.String("git-dir", ".", "repository directory containing objects/")
	parentsPath := fs.String("parents", "", "path to the parent-DAG dump (required)")
	force := fs.String("force", "", "pass \"yes\" to overwrite an existing commit-graph")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *parentsPath == "" {
		fmt.Fprintln(stderr, "rebuild-commit-graph: -parents is required")
		return 2
	}

	root := billy.New(*gitDir)
	graphPath := "objects/info/commit-graph"

	if *force != "yes" {
		if _, err := root.Stat(graphPath); err == nil {
			fmt.Fprintf(stderr, "rebuild-commit-graph: %s already exists; pass -force=yes to overwrite\n", graphPath)
			return 1
		}
	}

	f, err := os.Open(*parentsPath)
	if err != nil {
		fmt.Fprintf(stderr, "rebuild-commit-graph: %v\n", err)
		return 1
	}
	commits, err := parseParentDump(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(stderr, "rebuild-commit-graph: %v\n", err)
		return 1
	}

	ordered, err := topoSort(commits)
	if err != nil {
		fmt.Fprintf(stderr, "rebuild-commit-graph: %v\n", err)
		return 1
	}

	w := &commitgraph.Writer{}
	for _, c := range ordered {
		w.Add(c.id, c.tree, c.parents, c.when)
	}
	w.ComputeGenerations()
	idx := w.Build()

	if err := root.MkdirAll("objects/info", 0o755); err != nil {
		fmt.Fprintf(stderr, "rebuild-commit-graph: %v\n", err)
		return 1
	}
	out, err := root.Create(graphPath)
	if err != nil {
		fmt.Fprintf(stderr, "rebuild-commit-graph: %v\n", err)
		return 1
	}
	if _, err := commitgraph.NewEncoder(out).Encode(idx); err != nil {
		out.Close()
		fmt.Fprintf(stderr, "rebuild-commit-graph: %v\n", err)
		return 1
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(stderr, "rebuild-commit-graph: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "rebuild-commit-graph: wrote %d commits to %s\n", idx.Len(), graphPath)
	return 0
}

func parseParentDump(r io.Reader) ([]parsedCommit, error) {
	var out []parsedCommit
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected at least 3 fields, got %d", lineNo, len(fields))
		}

		id, err := gitstore.FromHex(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: commit id: %w", lineNo, err)
		}
		tree, err := gitstore.FromHex(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: tree id: %w", lineNo, err)
		}
		secs, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", lineNo, err)
		}

		var parents []gitstore.ObjectID
		if len(fields) > 3 && fields[3] != "-" {
			for _, p := range strings.Split(fields[3], ",") {
				pid, err := gitstore.FromHex(p)
				if err != nil {
					return nil, fmt.Errorf("line %d: parent id: %w", lineNo, err)
				}
				parents = append(parents, pid)
			}
		}

		out = append(out, parsedCommit{id: id, tree: tree, when: time.Unix(secs, 0).UTC(), parents: parents})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// topoSort orders commits parents-before-children via Kahn's
// algorithm, the ordering commitgraph.Writer.ComputeGenerations
// requires. A parent referenced but never defined in the dump is
// treated as external (already in an existing graph) and simply
// ignored for ordering purposes.
func topoSort(commits []parsedCommit) ([]parsedCommit, error) {
	byID := make(map[gitstore.ObjectID]*parsedCommit, len(commits))
	for i := range commits {
		byID[commits[i].id] = &commits[i]
	}

	children := make(map[gitstore.ObjectID][]gitstore.ObjectID)
	indegree := make(map[gitstore.ObjectID]int, len(commits))
	for _, c := range commits {
		indegree[c.id] = 0
	}
	for _, c := range commits {
		for _, p := range c.parents {
			if _, known := byID[p]; !known {
				continue
			}
			children[p] = append(children[p], c.id)
			indegree[c.id]++
		}
	}

	var queue []gitstore.ObjectID
	for _, c := range commits {
		if indegree[c.id] == 0 {
			queue = append(queue, c.id)
		}
	}

	var ordered []parsedCommit
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, *byID[id])
		for _, child := range children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(ordered) != len(commits) {
		return nil, fmt.Errorf("parent-DAG dump contains a cycle or a missing ordering dependency")
	}
	return ordered, nil
}
