// Package rules loads user-authored matching rules from CUE files. Files
// are unified with an embedded schema so structural problems surface with
// source positions; pattern compilation is deferred to the matcher, which
// isolates bad patterns per rule.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/rivercweiss/chime/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// LoadError describes a problem in one rule file. Rule-level errors carry
// the rule id; file-level errors leave it empty.
type LoadError struct {
	Path    string
	RuleID  string
	Message string
}

func (e *LoadError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("%s: rule %q: %s", e.Path, e.RuleID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadResult contains the rules extracted from a directory.
type LoadResult struct {
	Rules     []model.Rule
	Errors    []*LoadError // per-file and per-rule problems, load continues past them
	FileCount int
}

// LoadDir loads every .cue file under dir (recursively) and extracts the
// rules they define. A broken file or rule is recorded in Errors and
// skipped; the returned error is reserved for directory-level failures.
func LoadDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules directory %s: not a directory", dir)
	}

	files, err := findCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling rule schema: %w", err)
	}

	res := &LoadResult{FileCount: len(files)}
	seen := make(map[string]string) // rule id -> file that defined it

	for _, path := range files {
		res.loadFile(cctx, schema, path, seen)
	}

	sort.Slice(res.Rules, func(i, j int) bool { return res.Rules[i].ID < res.Rules[j].ID })
	return res, nil
}

func (res *LoadResult) loadFile(cctx *cue.Context, schema cue.Value, path string, seen map[string]string) {
	data, err := os.ReadFile(path)
	if err != nil {
		res.Errors = append(res.Errors, &LoadError{Path: path, Message: err.Error()})
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		res.Errors = append(res.Errors, &LoadError{Path: path, Message: err.Error()})
		return
	}

	v := cctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		res.Errors = append(res.Errors, &LoadError{Path: path, Message: err.Error()})
		return
	}

	unified := v.Unify(schema)
	if err := unified.Validate(); err != nil {
		res.Errors = append(res.Errors, &LoadError{Path: path, Message: err.Error()})
		return
	}

	rulesVal := unified.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		res.Errors = append(res.Errors, &LoadError{Path: path, Message: fmt.Sprintf("iterating rules: %v", err)})
		return
	}

	for iter.Next() {
		id := iter.Selector().Unquoted()
		if prev, dup := seen[id]; dup {
			res.Errors = append(res.Errors, &LoadError{
				Path:    path,
				RuleID:  id,
				Message: fmt.Sprintf("already defined in %s", prev),
			})
			continue
		}

		r, lerr := decodeRule(id, iter.Value(), info.ModTime())
		if lerr != nil {
			lerr.Path = path
			res.Errors = append(res.Errors, lerr)
			continue
		}
		seen[id] = path
		res.Rules = append(res.Rules, r)
	}
}

// ruleSpec mirrors the #Rule schema for decoding.
type ruleSpec struct {
	Name      string   `json:"name"`
	Pattern   string   `json:"pattern"`
	Lead      string   `json:"lead"`
	Calendars []string `json:"calendars"`
	Enabled   bool     `json:"enabled"`
}

func decodeRule(id string, v cue.Value, modTime time.Time) (model.Rule, *LoadError) {
	var spec ruleSpec
	if err := v.Decode(&spec); err != nil {
		return model.Rule{}, &LoadError{RuleID: id, Message: err.Error()}
	}

	lead, err := time.ParseDuration(spec.Lead)
	if err != nil {
		return model.Rule{}, &LoadError{RuleID: id, Message: fmt.Sprintf("lead %q: %v", spec.Lead, err)}
	}
	if lead < 0 {
		return model.Rule{}, &LoadError{RuleID: id, Message: fmt.Sprintf("lead %q: must not be negative", spec.Lead)}
	}

	return model.Rule{
		ID:            id,
		Name:          spec.Name,
		Pattern:       spec.Pattern,
		Kind:          model.DetectPatternKind(spec.Pattern),
		CalendarScope: spec.Calendars,
		LeadTime:      lead,
		Enabled:       spec.Enabled,
		CreatedAt:     modTime,
	}, nil
}

// findCUEFiles walks the directory and returns all .cue file paths, sorted
// for deterministic load order.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
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
