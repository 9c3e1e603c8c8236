package plugin

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/inmemory"
)

const fixtureHash = "3006e4db0ed513a0bdb8eda85ee14d5d16ca7165"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(GinkgoWriter, nil))
}

// fixtureHashNode stands in for the real hash node so checksum results are
// known ahead of time.
func fixtureHashNode() *depc.Node {
	return &depc.Node{
		Name:    NodeImageHash,
		Parents: []string{RootImages},
		Columns: []store.Column{
			{Name: "hash", Type: store.TypeText},
			{Name: "salt", Type: store.TypeText},
		},
		Compute: func(_ context.Context, _ *depc.Context, parents []store.Key, _ depc.Config) ([][]any, error) {
			out := make([][]any, len(parents))
			for i := range parents {
				out[i] = []any{fixtureHash, ""}
			}
			return out, nil
		},
	}
}

var _ = Describe("Checksum folds", func() {
	It("sums hash characters with a wrapping modulus", func() {
		Expect(hashByteSum(fixtureHash, 100)).To(Equal(24))
	})

	It("sums without wrapping when the modulus is zero", func() {
		total := 0
		for _, b := range []byte(fixtureHash) {
			total += int(b)
		}
		Expect(hashByteSum(fixtureHash, 0)).To(Equal(total))
	})

	It("folds the hash into a wrapped product", func() {
		Expect(hashByteProduct(fixtureHash, 1000)).To(Equal(525))
	})
})

var _ = Describe("Checksum nodes", func() {
	var d *depc.Depc

	BeforeEach(func() {
		reg := depc.NewRegistry(RootImages)
		Expect(reg.Register(fixtureHashNode())).To(Succeed())
		Expect(reg.Register(hashSumNode())).To(Succeed())
		Expect(reg.Register(hashProdNode())).To(Succeed())
		d = depc.New(reg, inmemory.New(), nil, testLogger())
	})

	It("computes the sum through the cached parent hash", func() {
		vals, err := d.Get(context.Background(), NodeImageHashSum, []int64{1}, "sum",
			map[string]any{"hash_sum_mod": 100})
		Expect(err).NotTo(HaveOccurred())
		Expect(vals).To(Equal([]any{int64(24)}))
	})

	It("computes the product through the cached parent hash", func() {
		vals, err := d.Get(context.Background(), NodeImageHashProd, []int64{1}, "product", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(vals).To(Equal([]any{int64(525)}))
	})

	It("preserves duplicates in the result", func() {
		vals, err := d.Get(context.Background(), NodeImageHashSum, []int64{1, 2, 1}, "sum",
			map[string]any{"hash_sum_mod": 100})
		Expect(err).NotTo(HaveOccurred())
		Expect(vals).To(Equal([]any{int64(24), int64(24), int64(24)}))
	})
})

var _ = Describe("Hash node", func() {
	var (
		ctrl *controller.Controller
		d    *depc.Depc
		gid  int64
	)

	BeforeEach(func() {
		var err error
		ctrl, err = controller.Open(":memory:", testLogger())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctrl.Close)

		gid, err = ctrl.AddImage(context.Background(), "demo://img.raw", []byte("payload bytes"))
		Expect(err).NotTo(HaveOccurred())

		reg := depc.NewRegistry(RootImages)
		Expect(RegisterImageNodes(reg)).To(Succeed())
		d = depc.New(reg, inmemory.New(), ctrl, testLogger())
	})

	It("is deterministic under a fixed salt", func() {
		cfg := map[string]any{"hash_salt": "pepper", "hash_rounds": 10}
		first, err := d.Get(context.Background(), NodeImageHash, []int64{gid}, "hash", cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(first[0]).To(HaveLen(40))

		again, err := d.Get(context.Background(), NodeImageHash, []int64{gid}, "hash", cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal(first))
	})

	It("keeps configurations in separate cache partitions", func() {
		sha1Cfg := map[string]any{"hash_salt": "pepper", "hash_rounds": 10}
		sha256Cfg := map[string]any{"hash_salt": "pepper", "hash_rounds": 10, "hash_algorithm": "sha256"}

		a, err := d.Get(context.Background(), NodeImageHash, []int64{gid}, "hash", sha1Cfg)
		Expect(err).NotTo(HaveOccurred())
		b, err := d.Get(context.Background(), NodeImageHash, []int64{gid}, "hash", sha256Cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(a[0]).To(HaveLen(40))
		Expect(b[0]).To(HaveLen(64))
	})

	It("rejects an unknown algorithm", func() {
		_, err := d.Get(context.Background(), NodeImageHash, []int64{gid}, "hash",
			map[string]any{"hash_algorithm": "md5"})
		var invalid depc.InvalidConfigError
		Expect(err).To(BeAssignableToTypeOf(invalid))
	})

	It("records a random salt when none is configured", func() {
		salts, err := d.Get(context.Background(), NodeImageHash, []int64{gid}, "salt",
			map[string]any{"hash_rounds": 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(salts[0]).To(HaveLen(2 * randomSaltLen))
	})
})

var _ = Describe("Thumbnail node", func() {
	var (
		ctrl *controller.Controller
		d    *depc.Depc
		gid  int64
	)

	payload := []byte("abcdefghijklmnop")

	BeforeEach(func() {
		var err error
		ctrl, err = controller.Open(":memory:", testLogger())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctrl.Close)

		gid, err = ctrl.AddImage(context.Background(), "demo://thumb.raw", payload)
		Expect(err).NotTo(HaveOccurred())

		reg := depc.NewRegistry(RootImages)
		Expect(RegisterImageNodes(reg)).To(Succeed())
		d = depc.New(reg, inmemory.New(), ctrl, testLogger())
	})

	It("keeps every stride-th byte", func() {
		rows, err := d.GetRows(context.Background(), NodeThumbnail, []int64{gid},
			map[string]any{"thumb_stride": 4})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0][0]).To(Equal([]byte{'a', 'e', 'i', 'm'}))
		Expect(rows[0][1]).To(Equal(int64(4)))
	})

	It("rejects a non-positive stride", func() {
		_, err := d.GetRows(context.Background(), NodeThumbnail, []int64{gid},
			map[string]any{"thumb_stride": 0})
		var invalid depc.InvalidConfigError
		Expect(err).To(BeAssignableToTypeOf(invalid))
	})
})

var _ = Describe("Oracle node", func() {
	var (
		ctrl *controller.Controller
		d    *depc.Depc
		a1   int64 // individual one
		a2   int64 // individual one, second sighting
		b1   int64 // individual two
	)

	BeforeEach(func() {
		var err error
		ctx := context.Background()
		ctrl, err = controller.Open(":memory:", testLogger())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ctrl.Close)

		nameA, err := ctrl.AddName(ctx, "alpha")
		Expect(err).NotTo(HaveOccurred())
		nameB, err := ctrl.AddName(ctx, "beta")
		Expect(err).NotTo(HaveOccurred())

		addAnnot := func(name int64, tag string) int64 {
			gid, err := ctrl.AddImage(ctx, "demo://"+tag, []byte(tag))
			Expect(err).NotTo(HaveOccurred())
			aid, err := ctrl.AddAnnotation(ctx, gid, name, 0, 0, 10, 10)
			Expect(err).NotTo(HaveOccurred())
			return aid
		}
		a1 = addAnnot(nameA, "a1")
		a2 = addAnnot(nameA, "a2")
		b1 = addAnnot(nameB, "b1")

		reg := depc.NewRegistry(RootAnnotations)
		Expect(RegisterAnnotNodes(reg)).To(Succeed())
		d = depc.New(reg, inmemory.New(), ctrl, testLogger())
	})

	It("scores matching names 1.0 and mismatches 0.0 when infallible", func() {
		cfg := map[string]any{"oracle_fallibility": 0.0}
		scores, pairs, err := d.GetProduct(context.Background(), NodeOracle,
			[]int64{a1}, []int64{a2, b1}, "score", cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(pairs).To(Equal([]store.Key{{a1, a2}, {a1, b1}}))
		Expect(scores).To(Equal([]any{1.0, 0.0}))
	})

	It("orders the cross product query-major", func() {
		cfg := map[string]any{"oracle_fallibility": 0.0}
		_, pairs, err := d.GetProduct(context.Background(), NodeOracle,
			[]int64{a1, a2}, []int64{b1, a1}, "score", cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(pairs).To(Equal([]store.Key{{a1, b1}, {a1, a1}, {a2, b1}, {a2, a1}}))
	})

	It("flips stably for a fixed seed regardless of batching", func() {
		cfg := map[string]any{"oracle_fallibility": 0.5, "oracle_seed": 7}
		all, _, err := d.GetProduct(context.Background(), NodeOracle,
			[]int64{a1, a2}, []int64{a1, a2, b1}, "score", cfg)
		Expect(err).NotTo(HaveOccurred())

		d2 := depc.New(mustAnnotRegistry(), inmemory.New(), ctrl, testLogger())
		var single []any
		for _, q := range []int64{a1, a2} {
			for _, a := range []int64{a1, a2, b1} {
				s, _, err := d2.GetProduct(context.Background(), NodeOracle,
					[]int64{q}, []int64{a}, "score", cfg)
				Expect(err).NotTo(HaveOccurred())
				single = append(single, s[0])
			}
		}
		Expect(single).To(Equal(all))
	})

	It("rejects a fallibility outside the unit interval", func() {
		_, _, err := d.GetProduct(context.Background(), NodeOracle,
			[]int64{a1}, []int64{a2}, "score", map[string]any{"oracle_fallibility": 1.5})
		var invalid depc.InvalidConfigError
		Expect(err).To(BeAssignableToTypeOf(invalid))
	})
})

func mustAnnotRegistry() *depc.Registry {
	reg := depc.NewRegistry(RootAnnotations)
	Expect(RegisterAnnotNodes(reg)).To(Succeed())
	return reg
}
