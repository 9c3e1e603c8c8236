package depc_test

import (
	"context"
	"errors"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/inmemory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var _ = Describe("Depc", func() {
	var (
		ctx context.Context
		reg *depc.Registry
		d   *depc.Depc

		doubleCalls int // compute invocations
		doubleIDs   int // ids handed to compute, cumulative
		quadIDs     int
		failIDs     map[int64]bool
	)

	BeforeEach(func() {
		ctx = context.Background()
		doubleCalls, doubleIDs, quadIDs = 0, 0, 0
		failIDs = map[int64]bool{}

		reg = depc.NewRegistry("images")

		Expect(reg.Register(&depc.Node{
			Name:    "double",
			Columns: []store.Column{{Name: "value", Type: store.TypeInteger}},
			Schema: depc.ConfigSchema{
				{Name: "bias", Default: 0},
				{Name: "tag", Default: "", HideIfDefault: true},
			},
			ChunkSize: 2,
			Compute: func(_ context.Context, _ *depc.Context, parents []store.Key, cfg depc.Config) ([][]any, error) {
				doubleCalls++
				doubleIDs += len(parents)
				out := make([][]any, len(parents))
				for i, p := range parents {
					out[i] = []any{2*p[0] + int64(cfg.Int("bias"))}
				}
				return out, nil
			},
		})).To(Succeed())

		Expect(reg.Register(&depc.Node{
			Name:    "quad",
			Parents: []string{"double"},
			Columns: []store.Column{{Name: "value", Type: store.TypeInteger}},
			Schema: depc.ConfigSchema{
				{Name: "scale", Default: 1},
			},
			Compute: func(ctx context.Context, g *depc.Context, parents []store.Key, cfg depc.Config) ([][]any, error) {
				quadIDs += len(parents)
				rowids := make([]int64, len(parents))
				for i, p := range parents {
					rowids[i] = p[0]
				}
				vals, err := g.Depc.GetNative(ctx, "double", rowids, "value")
				if err != nil {
					return nil, err
				}
				out := make([][]any, len(vals))
				for i, v := range vals {
					out[i] = []any{v.(int64) * 2 * int64(cfg.Int("scale"))}
				}
				return out, nil
			},
		})).To(Succeed())

		Expect(reg.Register(&depc.Node{
			Name:      "flaky",
			Columns:   []store.Column{{Name: "value", Type: store.TypeInteger}},
			ChunkSize: 2,
			Compute: func(_ context.Context, _ *depc.Context, parents []store.Key, _ depc.Config) ([][]any, error) {
				out := make([][]any, len(parents))
				for i, p := range parents {
					if failIDs[p[0]] {
						return nil, errors.New("sensor offline")
					}
					out[i] = []any{p[0]}
				}
				return out, nil
			},
		})).To(Succeed())

		Expect(reg.Register(&depc.Node{
			Name:    "pair",
			Parents: []string{"images", "images"},
			Columns: []store.Column{{Name: "score", Type: store.TypeReal}},
			Compute: func(_ context.Context, _ *depc.Context, parents []store.Key, _ depc.Config) ([][]any, error) {
				out := make([][]any, len(parents))
				for i, p := range parents {
					out[i] = []any{float64(p[0]*10 + p[1])}
				}
				return out, nil
			},
		})).To(Succeed())

		d = depc.New(reg, inmemory.New(), nil, testLogger())
	})

	Describe("Get", func() {
		It("computes on first request and serves the cache afterwards", func() {
			vals, err := d.Get(ctx, "double", []int64{1, 2, 3}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(Equal([]any{int64(2), int64(4), int64(6)}))
			Expect(doubleIDs).To(Equal(3))

			vals, err = d.Get(ctx, "double", []int64{1, 2, 3}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(Equal([]any{int64(2), int64(4), int64(6)}))
			Expect(doubleIDs).To(Equal(3), "second request must not recompute")
		})

		It("preserves duplicates but computes each id once", func() {
			vals, err := d.Get(ctx, "double", []int64{3, 1, 3}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(Equal([]any{int64(6), int64(2), int64(6)}))
			Expect(doubleIDs).To(Equal(2))
		})

		It("returns empty results for empty input without computing", func() {
			vals, err := d.Get(ctx, "double", nil, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(BeEmpty())
			Expect(doubleCalls).To(BeZero())
		})

		It("splits misses into chunk-size batches", func() {
			_, err := d.Get(ctx, "double", []int64{1, 2, 3, 4, 5}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(doubleCalls).To(Equal(3), "5 ids at chunk size 2")
		})

		It("rejects an unknown column", func() {
			_, err := d.Get(ctx, "double", []int64{1}, "nope", nil)
			Expect(err).To(MatchError(ContainSubstring("no column")))
		})

		It("rejects an unknown node", func() {
			_, err := d.Get(ctx, "nope", []int64{1}, "value", nil)
			Expect(err).To(BeAssignableToTypeOf(depc.UnknownNodeError{}))
		})
	})

	Describe("config partitions", func() {
		It("keeps rows for different configs separate", func() {
			plain, err := d.Get(ctx, "double", []int64{5}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			biased, err := d.Get(ctx, "double", []int64{5}, "value", map[string]any{"bias": 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(plain[0]).To(Equal(int64(10)))
			Expect(biased[0]).To(Equal(int64(11)))
			Expect(doubleIDs).To(Equal(2), "one compute per config")
		})

		It("treats an explicit default as the same partition", func() {
			_, err := d.Get(ctx, "double", []int64{5}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.Get(ctx, "double", []int64{5}, "value", map[string]any{"bias": 0, "tag": ""})
			Expect(err).NotTo(HaveOccurred())
			Expect(doubleIDs).To(Equal(1))
		})
	})

	Describe("dependency chains", func() {
		It("materializes ancestors transparently", func() {
			vals, err := d.Get(ctx, "quad", []int64{1, 2}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(Equal([]any{int64(4), int64(8)}))
			Expect(doubleIDs).To(Equal(2), "parent computed as part of the chain")
			Expect(quadIDs).To(Equal(2))
		})

		It("reuses cached ancestors across child configs", func() {
			_, err := d.Get(ctx, "quad", []int64{1}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			vals, err := d.Get(ctx, "quad", []int64{1}, "value", map[string]any{"scale": 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(vals[0]).To(Equal(int64(12)))
			Expect(doubleIDs).To(Equal(1), "parent cache shared between child configs")
		})
	})

	Describe("RowIDs and GetNative", func() {
		It("returns stable native row ids", func() {
			first, err := d.RowIDs(ctx, "double", []int64{1, 2}, nil)
			Expect(err).NotTo(HaveOccurred())
			second, err := d.RowIDs(ctx, "double", []int64{1, 2}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("reads cached values by native row id", func() {
			rowids, err := d.RowIDs(ctx, "double", []int64{4}, nil)
			Expect(err).NotTo(HaveOccurred())
			vals, err := d.GetNative(ctx, "double", rowids, "value")
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(Equal([]any{int64(8)}))
		})

		It("errors on a native row id that was never cached", func() {
			_, err := d.GetNative(ctx, "double", []int64{999}, "value")
			Expect(err).To(MatchError(ContainSubstring("not cached")))
		})
	})

	Describe("GetProduct", func() {
		It("orders the cross product query-major", func() {
			vals, pairs, err := d.GetProduct(ctx, "pair", []int64{1, 2}, []int64{7, 8}, "score", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(pairs).To(Equal([]store.Key{{1, 7}, {1, 8}, {2, 7}, {2, 8}}))
			Expect(vals).To(Equal([]any{17.0, 18.0, 27.0, 28.0}))
		})

		It("rejects single-parent nodes", func() {
			_, _, err := d.GetProduct(ctx, "double", []int64{1}, []int64{2}, "value", nil)
			Expect(err).To(MatchError(ContainSubstring("not a pair node")))
		})
	})

	Describe("invalidation", func() {
		It("recomputes only the deleted config", func() {
			_, err := d.Get(ctx, "double", []int64{5}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.Get(ctx, "double", []int64{5}, "value", map[string]any{"bias": 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(doubleIDs).To(Equal(2))

			Expect(d.DeleteProperty(ctx, "double", []int64{5}, nil)).To(Succeed())

			_, err = d.Get(ctx, "double", []int64{5}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(doubleIDs).To(Equal(3), "default config recomputed")

			_, err = d.Get(ctx, "double", []int64{5}, "value", map[string]any{"bias": 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(doubleIDs).To(Equal(3), "biased config untouched")
		})

		It("drops every config with DeletePropertyAll", func() {
			_, err := d.Get(ctx, "double", []int64{5}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.Get(ctx, "double", []int64{5}, "value", map[string]any{"bias": 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(d.DeletePropertyAll(ctx, "double", []int64{5})).To(Succeed())

			_, err = d.Get(ctx, "double", []int64{5}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.Get(ctx, "double", []int64{5}, "value", map[string]any{"bias": 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(doubleIDs).To(Equal(4), "both configs recomputed")
		})
	})

	Describe("compute failures", func() {
		It("wraps the failure with node and batch range", func() {
			failIDs[3] = true
			_, err := d.Get(ctx, "flaky", []int64{1, 2, 3, 4}, "value", nil)

			var ce depc.ComputeError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Node).To(Equal("flaky"))
			Expect(ce.BatchStart).To(Equal(2))
			Expect(ce.Unwrap()).To(MatchError("sensor offline"))
		})

		It("keeps chunks committed before the failure", func() {
			failIDs[3] = true
			_, err := d.Get(ctx, "flaky", []int64{1, 2, 3, 4}, "value", nil)
			Expect(err).To(HaveOccurred())

			// The first chunk landed; a retry only recomputes the rest.
			delete(failIDs, 3)
			failIDs[1] = true
			failIDs[2] = true
			vals, err := d.Get(ctx, "flaky", []int64{1, 2, 3, 4}, "value", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(Equal([]any{int64(1), int64(2), int64(3), int64(4)}))
		})
	})

	Describe("schema enforcement", func() {
		It("rejects a compute returning the wrong row count", func() {
			Expect(reg.Register(&depc.Node{
				Name:    "shortrows",
				Columns: []store.Column{{Name: "value", Type: store.TypeInteger}},
				Compute: func(_ context.Context, _ *depc.Context, _ []store.Key, _ depc.Config) ([][]any, error) {
					return [][]any{}, nil
				},
			})).To(Succeed())

			_, err := d.Get(ctx, "shortrows", []int64{1, 2}, "value", nil)
			var sme depc.SchemaMismatchError
			Expect(errors.As(err, &sme)).To(BeTrue())
			Expect(sme.What).To(Equal("rows"))
		})

		It("rejects a compute returning the wrong column count", func() {
			Expect(reg.Register(&depc.Node{
				Name:    "widecols",
				Columns: []store.Column{{Name: "value", Type: store.TypeInteger}},
				Compute: func(_ context.Context, _ *depc.Context, parents []store.Key, _ depc.Config) ([][]any, error) {
					out := make([][]any, len(parents))
					for i := range parents {
						out[i] = []any{int64(1), int64(2)}
					}
					return out, nil
				},
			})).To(Succeed())

			_, err := d.Get(ctx, "widecols", []int64{1}, "value", nil)
			var sme depc.SchemaMismatchError
			Expect(errors.As(err, &sme)).To(BeTrue())
			Expect(sme.What).To(Equal("columns"))
		})
	})
})
