package modelhub

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// ProblemKind classifies a file that failed verification.
type ProblemKind string

// Problem kinds.
const (
	ProblemMissing      ProblemKind = "missing"
	ProblemSizeMismatch ProblemKind = "size-mismatch"
	ProblemSHAMismatch  ProblemKind = "sha256-mismatch"
	ProblemUnreadable   ProblemKind = "unreadable"
)

// maxHashWorkers bounds concurrent hashing; disks saturate before CPUs do.
const maxHashWorkers = 8

// criticalFiles must exist for the checkpoint to load. Other files listed by
// the hub (README, images) may be absent.
var criticalFiles = []string{"config.json", "tokenizer.json", "model.safetensors.index.json"}

// Problem describes one file that does not match the hub.
type Problem struct {
	Name     string
	Kind     ProblemKind
	Detail   string
	Expected FileMeta
}

func (p Problem) String() string {
	if p.Detail == "" {
		return fmt.Sprintf("%s: %s", p.Name, p.Kind)
	}
	return fmt.Sprintf("%s: %s (%s)", p.Name, p.Kind, p.Detail)
}

// VerifyReport is the result of checking a model directory.
type VerifyReport struct {
	Dir      string
	Expected int
	Checked  int
	Problems []Problem
}

// OK reports whether every checked file matched.
func (r *VerifyReport) OK() bool {
	return len(r.Problems) == 0
}

// Summary renders one line per problem.
func (r *VerifyReport) Summary() string {
	if r.OK() {
		return fmt.Sprintf("%d file(s) in %s match the hub", r.Checked, r.Dir)
	}
	lines := lo.Map(r.Problems, func(p Problem, _ int) string { return p.String() })
	return fmt.Sprintf("%d of %d file(s) in %s do not match the hub:\n%s",
		len(r.Problems), r.Expected, r.Dir, strings.Join(lines, "\n"))
}

// Damaged returns the problems that concern files present on disk.
func (r *VerifyReport) Damaged() []Problem {
	return lo.Filter(r.Problems, func(p Problem, _ int) bool { return p.Kind != ProblemMissing })
}

// Verifier compares local model files with hub metadata.
type Verifier struct {
	source  MetadataSource
	fs      ports.FileSystem
	workers int
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithWorkers overrides the hashing concurrency.
func WithWorkers(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.workers = n
		}
	}
}

// NewVerifier creates a Verifier hashing with min(8, NumCPU) workers.
func NewVerifier(source MetadataSource, fs ports.FileSystem, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		source:  source,
		fs:      fs,
		workers: min(maxHashWorkers, runtime.NumCPU()),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks cfg.Dest() against the hub. Files that exist locally are
// hashed in parallel; missing files are reported only when critical.
func (v *Verifier) Verify(ctx context.Context, cfg Config) (*VerifyReport, error) {
	if !v.fs.IsDir(cfg.Dest()) {
		return nil, fmt.Errorf("model directory %s does not exist", cfg.Dest())
	}

	expected, err := v.source.Files(ctx, cfg.ID, cfg.Revision)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{Dir: cfg.Dest(), Expected: len(expected)}
	var present []FileMeta
	for _, meta := range expected {
		if err := validation.ValidatePath(meta.Name); err != nil {
			report.Problems = append(report.Problems, Problem{Name: meta.Name, Kind: ProblemUnreadable, Detail: err.Error(), Expected: meta})
			continue
		}
		if v.fs.Exists(localPath(cfg, meta.Name)) {
			present = append(present, meta)
			continue
		}
		if isCritical(meta.Name) {
			report.Problems = append(report.Problems, Problem{Name: meta.Name, Kind: ProblemMissing, Expected: meta})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for _, meta := range present {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			problem, ok := v.check(cfg, meta)
			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if !ok {
				report.Problems = append(report.Problems, problem)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Problems, func(i, j int) bool {
		return report.Problems[i].Name < report.Problems[j].Name
	})
	return report, nil
}

// check compares size first; the hash is only computed when sizes agree.
func (v *Verifier) check(cfg Config, meta FileMeta) (Problem, bool) {
	p := localPath(cfg, meta.Name)

	size, err := v.fs.FileSize(p)
	if err != nil {
		return Problem{Name: meta.Name, Kind: ProblemUnreadable, Detail: err.Error(), Expected: meta}, false
	}
	if size != meta.Size {
		return Problem{
			Name:     meta.Name,
			Kind:     ProblemSizeMismatch,
			Detail:   fmt.Sprintf("local %d, hub %d", size, meta.Size),
			Expected: meta,
		}, false
	}
	if meta.SHA256 == "" {
		return Problem{}, true
	}

	sum, err := v.fs.FileHash(p)
	if err != nil {
		return Problem{Name: meta.Name, Kind: ProblemUnreadable, Detail: err.Error(), Expected: meta}, false
	}
	if !strings.EqualFold(sum, meta.SHA256) {
		return Problem{Name: meta.Name, Kind: ProblemSHAMismatch, Expected: meta}, false
	}
	return Problem{}, true
}

func localPath(cfg Config, name string) string {
	return filepath.Join(cfg.Dest(), filepath.FromSlash(name))
}

func isCritical(name string) bool {
	return strings.HasSuffix(name, ".safetensors") || lo.Contains(criticalFiles, path.Base(name))
}
