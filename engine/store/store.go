package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/agentctl/agentctl/engine/agent"
	"github.com/agentctl/agentctl/engine/run"
	"github.com/agentctl/agentctl/engine/workflow"
)

// DefaultBaseDir is the on-disk home of all persisted state.
const DefaultBaseDir = "~/.agentctl"

const (
	workflowsDir = "workflows"
	agentsDir    = "agents"
	runsDir      = "runs"
	statsFile    = "workflow-stats.json"
)

// NotFoundError reports a missing stored object.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// AlreadyExistsError reports a name collision on create.
type AlreadyExistsError struct {
	Kind string
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// Store is the file-backed repository of workflow definitions, agent
// templates, run records and aggregate stats. It holds no state beyond the
// filesystem, so concurrent Stores over the same directory see each other's
// writes.
type Store struct {
	fs      afero.Fs
	baseDir string
}

// New opens a store on the OS filesystem. A leading ~ in baseDir is expanded
// against the current user's home.
func New(baseDir string) *Store {
	return NewWithFs(afero.NewOsFs(), baseDir)
}

// NewWithFs opens a store on an arbitrary filesystem, which is how tests run
// against an in-memory one.
func NewWithFs(fs afero.Fs, baseDir string) *Store {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	if baseDir == "~" || strings.HasPrefix(baseDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			baseDir = filepath.Join(home, strings.TrimPrefix(baseDir, "~"))
		}
	}
	return &Store{fs: fs, baseDir: baseDir}
}

// BaseDir returns the resolved root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// -----------------------------------------------------------------------------
// Workflows
// -----------------------------------------------------------------------------

func (s *Store) workflowPath(name string) string {
	return filepath.Join(s.baseDir, workflowsDir, name+".yaml")
}

// CreateWorkflow persists a new workflow definition, refusing to overwrite.
func (s *Store) CreateWorkflow(_ context.Context, cfg *workflow.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if ok, _ := afero.Exists(s.fs, s.workflowPath(cfg.Name)); ok {
		return &AlreadyExistsError{Kind: "workflow", Name: cfg.Name}
	}
	return s.writeWorkflow(cfg)
}

// SaveWorkflow persists a workflow definition, overwriting any previous one.
func (s *Store) SaveWorkflow(_ context.Context, cfg *workflow.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.writeWorkflow(cfg)
}

func (s *Store) writeWorkflow(cfg *workflow.Config) error {
	data, err := cfg.ToYAML()
	if err != nil {
		return err
	}
	return s.writeFile(s.workflowPath(cfg.Name), data)
}

// Workflow loads one workflow definition by name.
func (s *Store) Workflow(_ context.Context, name string) (*workflow.Config, error) {
	data, err := afero.ReadFile(s.fs, s.workflowPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Kind: "workflow", Name: name}
		}
		return nil, fmt.Errorf("failed to read workflow %q: %w", name, err)
	}
	return workflow.FromYAML(data)
}

// ListWorkflows loads every stored workflow, sorted by name. Unparseable
// files are reported, not silently dropped.
func (s *Store) ListWorkflows(ctx context.Context) ([]*workflow.Config, error) {
	names, err := s.listYAML(filepath.Join(s.baseDir, workflowsDir))
	if err != nil {
		return nil, err
	}
	configs := make([]*workflow.Config, 0, len(names))
	for _, name := range names {
		cfg, err := s.Workflow(ctx, name)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// DeleteWorkflow removes a workflow definition. Run history is kept.
func (s *Store) DeleteWorkflow(_ context.Context, name string) error {
	path := s.workflowPath(name)
	if ok, _ := afero.Exists(s.fs, path); !ok {
		return &NotFoundError{Kind: "workflow", Name: name}
	}
	return s.fs.Remove(path)
}

// -----------------------------------------------------------------------------
// Agents
// -----------------------------------------------------------------------------

func (s *Store) agentPath(name string) string {
	return filepath.Join(s.baseDir, agentsDir, name+".yaml")
}

// CreateAgent persists a new agent template, refusing to overwrite.
func (s *Store) CreateAgent(_ context.Context, cfg *agent.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if ok, _ := afero.Exists(s.fs, s.agentPath(cfg.Name)); ok {
		return &AlreadyExistsError{Kind: "agent", Name: cfg.Name}
	}
	return s.writeAgent(cfg)
}

// SaveAgent persists an agent template, overwriting any previous one.
func (s *Store) SaveAgent(_ context.Context, cfg *agent.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.writeAgent(cfg)
}

func (s *Store) writeAgent(cfg *agent.Config) error {
	data, err := cfg.ToYAML()
	if err != nil {
		return err
	}
	return s.writeFile(s.agentPath(cfg.Name), data)
}

// Agent loads one agent template by name. This also serves the executor's
// template lookups during a run.
func (s *Store) Agent(_ context.Context, name string) (*agent.Config, error) {
	data, err := afero.ReadFile(s.fs, s.agentPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Kind: "agent", Name: name}
		}
		return nil, fmt.Errorf("failed to read agent %q: %w", name, err)
	}
	return agent.FromYAML(data)
}

// ListAgents loads every stored agent template, sorted by name.
func (s *Store) ListAgents(ctx context.Context) ([]*agent.Config, error) {
	names, err := s.listYAML(filepath.Join(s.baseDir, agentsDir))
	if err != nil {
		return nil, err
	}
	configs := make([]*agent.Config, 0, len(names))
	for _, name := range names {
		cfg, err := s.Agent(ctx, name)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// DeleteAgent removes an agent template.
func (s *Store) DeleteAgent(_ context.Context, name string) error {
	path := s.agentPath(name)
	if ok, _ := afero.Exists(s.fs, path); !ok {
		return &NotFoundError{Kind: "agent", Name: name}
	}
	return s.fs.Remove(path)
}

// -----------------------------------------------------------------------------
// Runs
// -----------------------------------------------------------------------------

func (s *Store) runDir(workflowName string) string {
	return filepath.Join(s.baseDir, runsDir, workflowName)
}

func (s *Store) runPath(workflowName, runID string) string {
	return filepath.Join(s.runDir(workflowName), runID+".json")
}

// SaveRun persists a run record. Called after every job completion, so the
// record on disk trails the live run by at most the in-flight jobs.
func (s *Store) SaveRun(_ context.Context, r *run.WorkflowRun) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run %q: %w", r.ID, err)
	}
	return s.writeFile(s.runPath(r.WorkflowName, r.ID), data)
}

// LoadRun loads a run by ID. A unique ID prefix is accepted, so users can
// paste the short form shown in listings.
func (s *Store) LoadRun(ctx context.Context, workflowName, runID string) (*run.WorkflowRun, error) {
	data, err := afero.ReadFile(s.fs, s.runPath(workflowName, runID))
	if err == nil {
		return decodeRun(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read run %q: %w", runID, err)
	}

	ids, err := s.runIDs(workflowName)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, runID) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Kind: "run", Name: runID}
	case 1:
		data, err := afero.ReadFile(s.fs, s.runPath(workflowName, matches[0]))
		if err != nil {
			return nil, fmt.Errorf("failed to read run %q: %w", matches[0], err)
		}
		return decodeRun(data)
	default:
		return nil, fmt.Errorf("run ID prefix %q is ambiguous (%d matches)", runID, len(matches))
	}
}

// ListRuns loads every run of a workflow, newest first.
func (s *Store) ListRuns(_ context.Context, workflowName string) ([]*run.WorkflowRun, error) {
	ids, err := s.runIDs(workflowName)
	if err != nil {
		return nil, err
	}
	runs := make([]*run.WorkflowRun, 0, len(ids))
	for _, id := range ids {
		data, err := afero.ReadFile(s.fs, s.runPath(workflowName, id))
		if err != nil {
			return nil, fmt.Errorf("failed to read run %q: %w", id, err)
		}
		r, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	return runs, nil
}

// LatestRun returns the most recently started run of a workflow.
func (s *Store) LatestRun(ctx context.Context, workflowName string) (*run.WorkflowRun, error) {
	runs, err := s.ListRuns(ctx, workflowName)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, &NotFoundError{Kind: "run", Name: workflowName + "/latest"}
	}
	return runs[0], nil
}

// PruneRuns deletes all but the newest keep runs of a workflow, including
// their output directories, and returns how many were removed.
func (s *Store) PruneRuns(ctx context.Context, workflowName string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	runs, err := s.ListRuns(ctx, workflowName)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, r := range runs[min(keep, len(runs)):] {
		if err := s.fs.Remove(s.runPath(workflowName, r.ID)); err != nil {
			return pruned, fmt.Errorf("failed to prune run %q: %w", r.ID, err)
		}
		// Output directory shares the run's ID.
		_ = s.fs.RemoveAll(filepath.Join(s.runDir(workflowName), r.ID))
		pruned++
	}
	return pruned, nil
}

// JobOutputDir creates (if needed) and returns the scratch directory a job
// exposes as its output_dir.
func (s *Store) JobOutputDir(workflowName, runID, jobName string) (string, error) {
	dir := filepath.Join(s.runDir(workflowName), runID, jobName)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory for job %q: %w", jobName, err)
	}
	return dir, nil
}

func (s *Store) runIDs(workflowName string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.runDir(workflowName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list runs for %q: %w", workflowName, err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return ids, nil
}

func decodeRun(data []byte) (*run.WorkflowRun, error) {
	var r run.WorkflowRun
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse run record: %w", err)
	}
	return &r, nil
}

// -----------------------------------------------------------------------------
// Stats
// -----------------------------------------------------------------------------

func (s *Store) statsPath() string {
	return filepath.Join(s.baseDir, statsFile)
}

// Stats returns the aggregate stats for one workflow, zero-valued when the
// workflow has never run.
func (s *Store) Stats(_ context.Context, workflowName string) (*run.WorkflowStats, error) {
	all, err := s.loadStats()
	if err != nil {
		return nil, err
	}
	if stats, ok := all[workflowName]; ok {
		return stats, nil
	}
	return &run.WorkflowStats{}, nil
}

// RecordRunStats folds a finished run into its workflow's aggregate stats.
func (s *Store) RecordRunStats(_ context.Context, r *run.WorkflowRun) error {
	all, err := s.loadStats()
	if err != nil {
		return err
	}
	stats, ok := all[r.WorkflowName]
	if !ok {
		stats = &run.WorkflowStats{}
		all[r.WorkflowName] = stats
	}
	stats.RecordRun(r)

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize stats: %w", err)
	}
	return s.writeFile(s.statsPath(), data)
}

func (s *Store) loadStats() (map[string]*run.WorkflowStats, error) {
	data, err := afero.ReadFile(s.fs, s.statsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*run.WorkflowStats), nil
		}
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	var all map[string]*run.WorkflowStats
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	if all == nil {
		all = make(map[string]*run.WorkflowStats)
	}
	return all, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Store) writeFile(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}

func (s *Store) listYAML(dir string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %q: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, ".yaml") {
			names = append(names, strings.TrimSuffix(name, ".yaml"))
		}
	}
	sort.Strings(names)
	return names, nil
}
