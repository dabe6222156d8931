// Package config reads the region multigrid parameters. Parameter files are
// YAML; the "xml file" keys name YAML files holding a smoother block and a
// composite AMG block.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"

	"github.com/notargets/regionmg/amg"
	"github.com/notargets/regionmg/coarse"
	"github.com/notargets/regionmg/partition"
	"github.com/notargets/regionmg/smoother"
)

var ErrInvalid = errors.New("invalid parameters")

type CycleType string

const (
	VCycle CycleType = "V"
	WCycle CycleType = "W"
)

// Parameters obtained from the YAML input file
type Parameters struct {
	CoarseSolverType             string          `json:"coarse solver type"`
	SmootherFile                 string          `json:"smoother xml file"`
	AMGFile                      string          `json:"amg xml file"`
	CoarseSolverRebalance        bool            `json:"coarse solver rebalance"`
	CoarseRebalanceNumPartitions int             `json:"coarse rebalance num partitions"`
	CycleType                    CycleType       `json:"cycle type"`
	MaxRegionLevels              int             `json:"max region levels"`
	CoarseningRate               int             `json:"coarsening rate"`
	CoarseMaxSize                int             `json:"coarse max size"`
	MaxRegionsPerGID             int             `json:"max regions per gid"` // Zero keeps every region
	KeepCoarseCoordinates        bool            `json:"keep coarse coordinates"`
	DirectSolver                 string          `json:"direct solver"`
	Partitioner                  string          `json:"partitioner"`
	Smoother                     smoother.Params `json:"smoother"`

	// Filled from SmootherFile and AMGFile
	CoarseSmoother smoother.Params     `json:"-"`
	AMG            amg.CompositeParams `json:"-"`
}

func Default() *Parameters {
	return &Parameters{
		CoarseSolverType: coarse.Smoother.String(),
		CycleType:        VCycle,
		MaxRegionLevels:  10,
		CoarseningRate:   3,
		CoarseMaxSize:    10,
		DirectSolver:     coarse.DefaultDirectSolver,
		Partitioner:      partition.DefaultPartitioner,
		Smoother:         smoother.DefaultParams(),
		CoarseSmoother:   smoother.DefaultParams(),
		AMG:              amg.DefaultCompositeParams(),
	}
}

// Parse overlays data on the current values.
func (p *Parameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parsing parameters: %w", err)
	}
	p.CoarseSmoother = p.Smoother
	return nil
}

// Load reads a parameter file over the defaults, then the smoother and AMG
// files it references. Relative references are resolved against the
// directory of fileName.
func Load(fileName string) (p *Parameters, err error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("reading parameter file: %w", err)
	}
	p = Default()
	if err = p.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	if err = p.LoadReferenced(filepath.Dir(fileName)); err != nil {
		return nil, err
	}
	if err = p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return
}

// LoadReferenced reads the smoother and AMG parameter files named in p.
func (p *Parameters) LoadReferenced(dir string) (err error) {
	resolve := func(name string) string {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(dir, name)
	}
	if p.SmootherFile != "" {
		sp := p.Smoother
		if err = readYAML(resolve(p.SmootherFile), &sp); err != nil {
			return
		}
		p.CoarseSmoother = sp
	}
	if p.AMGFile != "" {
		ap := amg.DefaultCompositeParams()
		if err = readYAML(resolve(p.AMGFile), &ap); err != nil {
			return
		}
		p.AMG = ap
	}
	return
}

func readYAML(fileName string, v interface{}) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("reading parameter file: %w", err)
	}
	if err = yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", fileName, err)
	}
	return nil
}

// Validate reports every inconsistent value at once.
func (p *Parameters) Validate() error {
	var errs []error
	if _, err := coarse.ParseKind(p.CoarseSolverType); err != nil {
		errs = append(errs, err)
	}
	if p.CycleType != VCycle && p.CycleType != WCycle {
		errs = append(errs, fmt.Errorf("cycle type %q, want V or W", p.CycleType))
	}
	if p.MaxRegionLevels < 1 {
		errs = append(errs, fmt.Errorf("max region levels %d < 1", p.MaxRegionLevels))
	}
	if p.CoarseningRate < 2 {
		errs = append(errs, fmt.Errorf("coarsening rate %d < 2", p.CoarseningRate))
	}
	if p.MaxRegionsPerGID < 0 {
		errs = append(errs, fmt.Errorf("max regions per gid %d < 0", p.MaxRegionsPerGID))
	}
	if p.CoarseRebalanceNumPartitions < 0 {
		errs = append(errs, fmt.Errorf("coarse rebalance num partitions %d < 0", p.CoarseRebalanceNumPartitions))
	}
	for _, sp := range []smoother.Params{p.Smoother, p.CoarseSmoother} {
		if _, err := smoother.ParseType(string(sp.WithDefaults().Type)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) != 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// CoarseOptions translates the parameters into coarse solver options.
func (p *Parameters) CoarseOptions() (opts coarse.Options, err error) {
	kind, err := coarse.ParseKind(p.CoarseSolverType)
	if err != nil {
		return
	}
	opts = coarse.Options{
		Kind:                   kind,
		Smoother:               p.CoarseSmoother,
		AMG:                    p.AMG,
		DirectSolver:           p.DirectSolver,
		Rebalance:              p.CoarseSolverRebalance,
		RebalanceNumPartitions: p.CoarseRebalanceNumPartitions,
		Partitioner:            p.Partitioner,
		KeepCoarseCoords:       p.KeepCoarseCoordinates,
	}
	return
}

func (p *Parameters) Print(w io.Writer) {
	fmt.Fprintf(w, "[%s]\t\t\t= coarse solver type\n", p.CoarseSolverType)
	fmt.Fprintf(w, "[%s]\t\t\t\t= cycle type\n", p.CycleType)
	fmt.Fprintf(w, "[%d]\t\t\t\t= max region levels\n", p.MaxRegionLevels)
	fmt.Fprintf(w, "[%d]\t\t\t\t= coarsening rate\n", p.CoarseningRate)
	fmt.Fprintf(w, "[%d]\t\t\t\t= coarse max size\n", p.CoarseMaxSize)
	fmt.Fprintf(w, "[%v]\t\t\t= keep coarse coordinates\n", p.KeepCoarseCoordinates)
	fmt.Fprintf(w, "[%v]\t\t\t= coarse solver rebalance\n", p.CoarseSolverRebalance)
	fmt.Fprintf(w, "[%d]\t\t\t\t= coarse rebalance num partitions\n", p.CoarseRebalanceNumPartitions)
	fmt.Fprintf(w, "[%s]\t\t\t\t= direct solver\n", p.DirectSolver)
	fmt.Fprintf(w, "[%s]\t\t\t\t= partitioner\n", p.Partitioner)
	fmt.Fprintf(w, "%+v\t= smoother\n", p.Smoother)
	fmt.Fprintf(w, "%+v\t= coarse smoother\n", p.CoarseSmoother)
	fmt.Fprintf(w, "%+v\t= coarse AMG\n", p.AMG)
}

// Example is a complete parameter file with the default values.
const Example = `coarse solver type: smoother  # smoother, direct or amg
smoother xml file: ""           # YAML smoother block for the coarsest level
amg xml file: ""                # YAML composite AMG block for the amg coarse solver
coarse solver rebalance: false
coarse rebalance num partitions: 0  # 0 picks the count from the coarse size
cycle type: V
max region levels: 10
coarsening rate: 3
coarse max size: 10
max regions per gid: 0
keep coarse coordinates: false
direct solver: lu
partitioner: rcb
smoother:
  "smoother: type": Jacobi
  "smoother: sweeps": 1
  "smoother: damping": 0.67
  "smoother: Chebyshev degree": 2
  "smoother: Chebyshev eigRatio": 20
  "smoother: power iterations": 10
`
