package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/regionmg/config"
	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/gallery"
	"github.com/notargets/regionmg/regionmg"
	"github.com/notargets/regionmg/timers"
	"github.com/notargets/regionmg/utils"
)

type ModelSolve struct {
	ParamsFile string
	Spec       gallery.Spec
	Solver     string
	Tolerance  float64
	MaxIter    int
	Profile    string
	ProfileDir string
	Metrics    bool
}

// SolveCmd represents the solve command
var SolveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a structured Poisson problem with a region multigrid hierarchy",
	Long: `
Builds a Poisson problem on a box of nodes split into one region per rank,
sets up the region hierarchy from the parameter file and solves it with
repeated V-cycles (richardson) or V-cycle preconditioned CG (pcg).

regionmg solve -I params.yaml --nx 65 --ny 65 --rx 4 --ry 2 --solver pcg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ms := &ModelSolve{
			ParamsFile: viper.GetString("inputParametersFile"),
			Spec: gallery.Spec{
				Dim:         viper.GetInt("dim"),
				Nodes:       [3]int{viper.GetInt("nx"), viper.GetInt("ny"), viper.GetInt("nz")},
				Regions:     [3]int{viper.GetInt("rx"), viper.GetInt("ry"), viper.GetInt("rz")},
				DofsPerNode: viper.GetInt("dofs"),
				Dirichlet:   !viper.GetBool("neumann"),
			},
			Solver:     viper.GetString("solver"),
			Tolerance:  viper.GetFloat64("tol"),
			MaxIter:    viper.GetInt("maxIter"),
			Profile:    viper.GetString("profile"),
			ProfileDir: viper.GetString("profileDir"),
			Metrics:    viper.GetBool("metrics"),
		}
		return RunSolve(ms, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(SolveCmd)
	SolveCmd.Flags().StringP("inputParametersFile", "I", "", "YAML parameter file, see the params command")
	SolveCmd.Flags().IntP("dim", "D", 2, "problem dimension: 1, 2 or 3")
	SolveCmd.Flags().Int("nx", 17, "nodes in x")
	SolveCmd.Flags().Int("ny", 17, "nodes in y")
	SolveCmd.Flags().Int("nz", 1, "nodes in z")
	SolveCmd.Flags().Int("rx", 2, "regions in x")
	SolveCmd.Flags().Int("ry", 1, "regions in y")
	SolveCmd.Flags().Int("rz", 1, "regions in z")
	SolveCmd.Flags().Int("dofs", 1, "unknowns per node")
	SolveCmd.Flags().Bool("neumann", false, "natural boundary rows instead of Dirichlet")
	SolveCmd.Flags().StringP("solver", "s", "richardson", "outer solver: richardson or pcg")
	SolveCmd.Flags().Float64("tol", 1e-8, "relative residual tolerance")
	SolveCmd.Flags().Int("maxIter", 100, "maximum outer iterations")
	SolveCmd.Flags().String("profile", "", "write a cpu or mem profile")
	SolveCmd.Flags().String("profileDir", ".", "directory for profiles")
	SolveCmd.Flags().BoolP("metrics", "m", false, "print the setup and cycle timers")
	_ = viper.BindPFlags(SolveCmd.Flags())
}

func (ms *ModelSolve) check() (err error) {
	s := ms.Spec
	if s.Dim < 1 || s.Dim > 3 {
		return fmt.Errorf("dimension %d, want 1, 2 or 3", s.Dim)
	}
	for d := 0; d < 3; d++ {
		if d >= s.Dim {
			ms.Spec.Nodes[d], ms.Spec.Regions[d] = 1, 1
			continue
		}
		if s.Regions[d] < 1 || s.Nodes[d] < s.Regions[d]+1 {
			return fmt.Errorf("dimension %d: %d nodes cannot hold %d regions", d, s.Nodes[d], s.Regions[d])
		}
	}
	if s.DofsPerNode < 1 || s.DofsPerNode > 3 {
		return fmt.Errorf("%d unknowns per node, want 1, 2 or 3", s.DofsPerNode)
	}
	switch ms.Solver {
	case "richardson", "pcg":
	default:
		return fmt.Errorf("unknown solver %q, want richardson or pcg", ms.Solver)
	}
	switch ms.Profile {
	case "", "cpu", "mem":
	default:
		return fmt.Errorf("unknown profile %q, want cpu or mem", ms.Profile)
	}
	return
}

func RunSolve(ms *ModelSolve, w io.Writer) (err error) {
	if err = ms.check(); err != nil {
		return
	}
	switch ms.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(ms.ProfileDir), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(ms.ProfileDir), profile.NoShutdownHook).Stop()
	}
	params := config.Default()
	if ms.ParamsFile != "" {
		if params, err = config.Load(ms.ParamsFile); err != nil {
			return
		}
	}
	var (
		s          = ms.Spec
		numRegions = s.Regions[0] * s.Regions[1] * s.Regions[2]
		p          = gallery.NewPoisson(dist.NewComm(numRegions), s)
		tm         = timers.New()
		h          = regionmg.CreateRegionHierarchy(regionmg.NewSetupInput(p), params, tm)
		x          = dist.NewVector(p.CompRowMap)
		res        regionmg.SolveResult
	)
	slog.Debug("hierarchy ready", "memory", utils.GetMemUsage())
	fmt.Fprintf(w, "%d composite unknowns in %d regions, %d levels, %s coarse solver\n",
		p.CompRowMap.NumGlobal(), numRegions, h.NumLevels(), h.Coarse.Kind())
	switch ms.Solver {
	case "richardson":
		res, err = h.Richardson(p.B, x, ms.Tolerance, ms.MaxIter)
	case "pcg":
		res, err = h.PCG(p.A, p.B, x, ms.Tolerance, ms.MaxIter)
	}
	r0 := res.ResidualHistory[0]
	for it, r := range res.ResidualHistory {
		rel := r
		if r0 > 0 {
			rel /= r0
		}
		fmt.Fprintf(w, "%4d %14.6e %14.6e\n", it, r, rel)
	}
	fmt.Fprintf(w, "converged: %v after %d iterations\n", res.Converged, res.Iterations)
	if ms.Metrics {
		if werr := tm.Write(w); werr != nil && err == nil {
			err = werr
		}
	}
	return
}
