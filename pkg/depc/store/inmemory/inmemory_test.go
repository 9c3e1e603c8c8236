package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/inmemory"
)

var _ = Describe("Store", func() {
	var (
		ctx context.Context
		s   *inmemory.Store
	)

	schema := store.TableSchema{
		ParentCount: 1,
		Columns: []store.Column{
			{Name: "value", Type: store.TypeInteger},
		},
	}

	put := func(cfgKey string, id int64, value int64) int64 {
		ids, err := s.PutRows(ctx, "feat", cfgKey, []store.Entry{
			{Parents: store.Key{id}, Roots: store.Key{id}, Values: []any{value}},
		})
		Expect(err).NotTo(HaveOccurred())
		return ids[0]
	}

	BeforeEach(func() {
		ctx = context.Background()
		s = inmemory.New()
		Expect(s.EnsureTable(ctx, "feat", "feat()", schema)).To(Succeed())
	})

	It("round-trips rows within a config partition", func() {
		rowid := put("feat()", 1, 10)

		rows, err := s.GetRows(ctx, "feat", "feat()", []store.Key{{1}, {2}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(rows["1"].RowID).To(Equal(rowid))
		Expect(rows["1"].Values).To(Equal([]any{int64(10)}))
	})

	It("keeps config partitions separate", func() {
		put("feat()", 1, 10)

		rows, err := s.GetRows(ctx, "feat", "feat(mode=2)", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())
	})

	It("keeps the row id on overwrite", func() {
		first := put("feat()", 1, 10)
		second := put("feat()", 1, 99)
		Expect(second).To(Equal(first))

		rows, err := s.GetRows(ctx, "feat", "feat()", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows["1"].Values).To(Equal([]any{int64(99)}))
	})

	It("addresses rows by native id across configs", func() {
		a := put("feat()", 1, 10)
		b := put("feat(mode=2)", 1, 20)
		Expect(a).NotTo(Equal(b))

		rows, err := s.GetNative(ctx, "feat", []int64{a, b})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows[a].Values).To(Equal([]any{int64(10)}))
		Expect(rows[b].Values).To(Equal([]any{int64(20)}))
	})

	It("deletes by root id within one config", func() {
		put("feat()", 1, 10)
		put("feat(mode=2)", 1, 20)

		Expect(s.Delete(ctx, "feat", "feat()", []int64{1})).To(Succeed())

		rows, err := s.GetRows(ctx, "feat", "feat()", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())

		rows, err = s.GetRows(ctx, "feat", "feat(mode=2)", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
	})

	It("deletes across every config", func() {
		put("feat()", 1, 10)
		put("feat(mode=2)", 1, 20)
		put("feat()", 2, 30)

		Expect(s.DeleteAllConfigs(ctx, "feat", []int64{1})).To(Succeed())

		rows, err := s.GetRows(ctx, "feat", "feat()", []store.Key{{1}, {2}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveKey("2"))
		Expect(rows).NotTo(HaveKey("1"))

		rows, err = s.GetRows(ctx, "feat", "feat(mode=2)", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())
	})

	It("tolerates deletes on unknown nodes and ids", func() {
		Expect(s.Delete(ctx, "ghost", "ghost()", []int64{1})).To(Succeed())
		Expect(s.DeleteAllConfigs(ctx, "ghost", []int64{1})).To(Succeed())
	})
})
