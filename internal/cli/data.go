package cli

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veloxdb/veloxdb"
)

func newGenCommand(a *app) *cobra.Command {
	var (
		out      string
		count    int
		dim      int
		clusters int
		seed     uint64
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Write a synthetic .fvecs file",
		Long: `Generate count random vectors of the given dimension. With --clusters the
vectors are drawn around that many random centers, which gives k-means
something to find.`,
		Example: `  veloxd gen --out data/vectors.fvecs -n 100000 -d 128 --clusters 64`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 || dim < 1 {
				return fmt.Errorf("%w: count and dimension must be positive", veloxdb.ErrInvalidParameter)
			}
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

			var centers [][]float32
			for range clusters {
				c := make([]float32, dim)
				for j := range c {
					c[j] = rng.Float32() * 100
				}
				centers = append(centers, c)
			}

			db := a.newIndex()
			defer db.Close()
			vec := make([]float32, dim)
			for range count {
				if len(centers) > 0 {
					c := centers[rng.IntN(len(centers))]
					for j := range vec {
						vec[j] = c[j] + float32(rng.NormFloat64())
					}
				} else {
					for j := range vec {
						vec[j] = rng.Float32()
					}
				}
				if _, err := db.Add(vec); err != nil {
					return err
				}
			}
			if err := db.WriteFvecs(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d vectors of dimension %d to %s\n", count, dim, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "vectors.fvecs", "output .fvecs path")
	cmd.Flags().IntVarP(&count, "count", "n", 1000, "number of vectors")
	cmd.Flags().IntVarP(&dim, "dim", "d", 128, "vector dimension")
	cmd.Flags().IntVar(&clusters, "clusters", 0, "draw vectors around this many centers (0 = uniform)")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	return cmd
}

func newTrainCommand(a *app) *cobra.Command {
	var (
		fvecs    string
		out      string
		k        int
		maxIters int
		metric   string
	)

	cmd := &cobra.Command{
		Use:     "train",
		Short:   "Build an IVF index over a .fvecs file",
		Example: `  veloxd train --fvecs data/vectors.fvecs --out data/index.ivf -k 64 --max-iters 25 --metric cos`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := veloxdb.ParseMetric(metric)
			if err != nil {
				return err
			}
			db := a.newIndex()
			defer db.Close()
			if err := db.LoadFvecs(fvecs); err != nil {
				return err
			}
			if err := db.BuildIndex(cmd.Context(), k, maxIters, m); err != nil {
				return err
			}
			if err := db.SaveIndex(out); err != nil {
				return err
			}
			st, _ := db.TrainingStats()
			fmt.Fprintf(cmd.OutOrStdout(), "trained %d clusters over %d vectors in %d iterations (converged=%t, reseeded=%d), saved to %s\n",
				st.Clusters, db.Len(), st.Iterations, st.Converged, st.Reseeded, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&fvecs, "fvecs", "vectors.fvecs", "input .fvecs path")
	cmd.Flags().StringVarP(&out, "out", "o", "index.ivf", "output .ivf path")
	cmd.Flags().IntVarP(&k, "clusters", "k", 16, "number of clusters")
	cmd.Flags().IntVar(&maxIters, "max-iters", 20, "maximum k-means iterations")
	cmd.Flags().StringVar(&metric, "metric", "eucl", "distance metric (eucl, cos)")
	return cmd
}

func newQueryCommand(a *app) *cobra.Command {
	var (
		fvecs  string
		index  string
		metric string
		k      int
	)

	cmd := &cobra.Command{
		Use:   "query <v1,v2,...>",
		Short: "Find the nearest stored vectors to a query",
		Long: `Load a .fvecs file, and optionally an .ivf index trained over it, then
print the k nearest vectors to the comma-separated query as "id distance"
lines. Without an index the scan is exact.`,
		Example: `  veloxd query --fvecs data/vectors.fvecs --index data/index.ivf 0.1,0.2,0.3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseVector(args[0])
			if err != nil {
				return err
			}
			m, err := veloxdb.ParseMetric(metric)
			if err != nil {
				return err
			}

			db := a.newIndex()
			defer db.Close()
			if err := db.LoadFvecs(fvecs); err != nil {
				return err
			}
			if index != "" {
				if err := db.LoadIndex(index); err != nil {
					return err
				}
			}

			res, err := db.SearchK(cmd.Context(), q, k, m)
			if err != nil {
				return err
			}
			for _, r := range res {
				fmt.Fprintf(cmd.OutOrStdout(), "%d %g\n", r.ID, r.Distance)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fvecs, "fvecs", "vectors.fvecs", "input .fvecs path")
	cmd.Flags().StringVar(&index, "index", "", "optional .ivf index path")
	cmd.Flags().StringVar(&metric, "metric", "eucl", "distance metric (eucl, cos)")
	cmd.Flags().IntVarP(&k, "k", "k", 1, "number of neighbors")
	return cmd
}

func newSnapshotCommand(a *app) *cobra.Command {
	var (
		fvecs string
		index string
	)

	cmd := &cobra.Command{
		Use:   "snapshot <dir>",
		Short: "Bundle a .fvecs file and its index into a snapshot directory",
		Long: `Write vectors.fvecs, index.ivf (when --index is given) and a manifest with
sizes and checksums into dir. Snapshot directories are what push uploads.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := a.newIndex()
			defer db.Close()
			if err := db.LoadFvecs(fvecs); err != nil {
				return err
			}
			if index != "" {
				if err := db.LoadIndex(index); err != nil {
					return err
				}
			}
			mf, err := db.SaveSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d vectors, dimension %d\n", mf.ID, mf.Count, mf.Dimension)
			return nil
		},
	}

	cmd.Flags().StringVar(&fvecs, "fvecs", "vectors.fvecs", "input .fvecs path")
	cmd.Flags().StringVar(&index, "index", "", "optional .ivf index path")
	return cmd
}

func parseVector(s string) ([]float32, error) {
	fields := strings.Split(s, ",")
	vec := make([]float32, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad vector component %q", veloxdb.ErrInvalidParameter, f)
		}
		vec = append(vec, float32(x))
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", veloxdb.ErrInvalidParameter)
	}
	return vec, nil
}
