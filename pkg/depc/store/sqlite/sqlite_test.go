package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/assets"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/sqlite"
)

var _ = Describe("Store", func() {
	var (
		ctx context.Context
		s   *sqlite.Store
	)

	schema := store.TableSchema{
		ParentCount: 1,
		Columns: []store.Column{
			{Name: "digest", Type: store.TypeText},
			{Name: "size", Type: store.TypeInteger},
		},
	}

	put := func(cfgKey string, id int64, digest string, size int64) int64 {
		ids, err := s.PutRows(ctx, "hash", cfgKey, []store.Entry{
			{Parents: store.Key{id}, Roots: store.Key{id}, Values: []any{digest, size}},
		})
		Expect(err).NotTo(HaveOccurred())
		return ids[0]
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		s, err = sqlite.New(":memory:", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.EnsureTable(ctx, "hash", "hash()", schema)).To(Succeed())
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
	})

	It("round-trips typed column values", func() {
		rowid := put("hash()", 1, "abc", 3)

		rows, err := s.GetRows(ctx, "hash", "hash()", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows["1"].RowID).To(Equal(rowid))
		Expect(rows["1"].Values).To(Equal([]any{"abc", int64(3)}))
	})

	It("reports only cached keys", func() {
		put("hash()", 1, "abc", 3)

		rows, err := s.GetRows(ctx, "hash", "hash()", []store.Key{{1}, {2}, {3}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
	})

	It("keeps the row id on overwrite", func() {
		first := put("hash()", 1, "abc", 3)
		second := put("hash()", 1, "def", 4)
		Expect(second).To(Equal(first))

		rows, err := s.GetRows(ctx, "hash", "hash()", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows["1"].Values).To(Equal([]any{"def", int64(4)}))
	})

	It("keeps config partitions separate but shares the native id space", func() {
		a := put("hash()", 1, "abc", 3)
		b := put("hash(rounds=10)", 1, "xyz", 3)
		Expect(a).NotTo(Equal(b))

		rows, err := s.GetRows(ctx, "hash", "hash()", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows["1"].Values[0]).To(Equal("abc"))

		native, err := s.GetNative(ctx, "hash", []int64{a, b})
		Expect(err).NotTo(HaveOccurred())
		Expect(native[a].Values[0]).To(Equal("abc"))
		Expect(native[b].Values[0]).To(Equal("xyz"))
	})

	It("deletes by root id within one config", func() {
		put("hash()", 1, "abc", 3)
		put("hash(rounds=10)", 1, "xyz", 3)

		Expect(s.Delete(ctx, "hash", "hash()", []int64{1})).To(Succeed())

		rows, err := s.GetRows(ctx, "hash", "hash()", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())

		rows, err = s.GetRows(ctx, "hash", "hash(rounds=10)", []store.Key{{1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
	})

	It("deletes across every config", func() {
		put("hash()", 1, "abc", 3)
		put("hash(rounds=10)", 1, "xyz", 3)

		Expect(s.DeleteAllConfigs(ctx, "hash", []int64{1})).To(Succeed())

		for _, key := range []string{"hash()", "hash(rounds=10)"} {
			rows, err := s.GetRows(ctx, "hash", key, []store.Key{{1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
		}
	})

	It("persists rows and schemas across reopen", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "depc.sqlite")

		first, err := sqlite.New(path, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.EnsureTable(ctx, "hash", "hash()", schema)).To(Succeed())
		_, err = first.PutRows(ctx, "hash", "hash()", []store.Entry{
			{Parents: store.Key{7}, Roots: store.Key{7}, Values: []any{"abc", int64(3)}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Close()).To(Succeed())

		second, err := sqlite.New(path, nil)
		Expect(err).NotTo(HaveOccurred())
		defer second.Close()

		rows, err := second.GetRows(ctx, "hash", "hash()", []store.Key{{7}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).NotTo(HaveKey("1"))
		Expect(rows["7"].Values).To(Equal([]any{"abc", int64(3)}))
	})

	Describe("pair tables", func() {
		pairSchema := store.TableSchema{
			ParentCount: 2,
			Columns: []store.Column{
				{Name: "score", Type: store.TypeReal},
			},
		}

		It("keys rows by the full parent tuple", func() {
			Expect(s.EnsureTable(ctx, "match", "match()", pairSchema)).To(Succeed())
			_, err := s.PutRows(ctx, "match", "match()", []store.Entry{
				{Parents: store.Key{1, 2}, Roots: store.Key{1, 2}, Values: []any{0.5}},
				{Parents: store.Key{2, 1}, Roots: store.Key{2, 1}, Values: []any{0.9}},
			})
			Expect(err).NotTo(HaveOccurred())

			rows, err := s.GetRows(ctx, "match", "match()", []store.Key{{1, 2}, {2, 1}, {1, 1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows["1/2"].Values).To(Equal([]any{0.5}))
			Expect(rows["2/1"].Values).To(Equal([]any{0.9}))
		})

		It("deletes rows when any slot matches a root id", func() {
			Expect(s.EnsureTable(ctx, "match", "match()", pairSchema)).To(Succeed())
			_, err := s.PutRows(ctx, "match", "match()", []store.Entry{
				{Parents: store.Key{1, 2}, Roots: store.Key{1, 2}, Values: []any{0.5}},
				{Parents: store.Key{3, 4}, Roots: store.Key{3, 4}, Values: []any{0.7}},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(s.DeleteAllConfigs(ctx, "match", []int64{2})).To(Succeed())

			rows, err := s.GetRows(ctx, "match", "match()", []store.Key{{1, 2}, {3, 4}})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows).To(HaveKey("3/4"))
		})
	})

	Describe("external columns", func() {
		extSchema := store.TableSchema{
			ParentCount: 1,
			Columns: []store.Column{
				{Name: "thumb", Type: store.TypeBlob, External: true},
				{Name: "size", Type: store.TypeInteger},
			},
		}

		var (
			es       *sqlite.Store
			assetDir string
		)

		BeforeEach(func() {
			assetDir = GinkgoT().TempDir()
			dir, err := assets.NewDir(assetDir)
			Expect(err).NotTo(HaveOccurred())
			es, err = sqlite.New(":memory:", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(es.EnsureTable(ctx, "thumb", "thumb()", extSchema)).To(Succeed())
		})

		AfterEach(func() {
			Expect(es.Close()).To(Succeed())
		})

		It("stores payloads outside the database and reads them back inline", func() {
			payload := []byte{1, 2, 3, 4}
			_, err := es.PutRows(ctx, "thumb", "thumb()", []store.Entry{
				{Parents: store.Key{1}, Roots: store.Key{1}, Values: []any{payload, int64(4)}},
			})
			Expect(err).NotTo(HaveOccurred())

			entries, err := os.ReadDir(assetDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))

			rows, err := es.GetRows(ctx, "thumb", "thumb()", []store.Key{{1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows["1"].Values[0]).To(Equal(payload))
			Expect(rows["1"].Values[1]).To(Equal(int64(4)))
		})

		It("replaces the payload on overwrite without orphaning files", func() {
			_, err := es.PutRows(ctx, "thumb", "thumb()", []store.Entry{
				{Parents: store.Key{1}, Roots: store.Key{1}, Values: []any{[]byte{1, 2}, int64(2)}},
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = es.PutRows(ctx, "thumb", "thumb()", []store.Entry{
				{Parents: store.Key{1}, Roots: store.Key{1}, Values: []any{[]byte{9, 9, 9}, int64(3)}},
			})
			Expect(err).NotTo(HaveOccurred())

			entries, err := os.ReadDir(assetDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))

			rows, err := es.GetRows(ctx, "thumb", "thumb()", []store.Key{{1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows["1"].Values[0]).To(Equal([]byte{9, 9, 9}))
		})

		It("removes payloads together with their rows", func() {
			_, err := es.PutRows(ctx, "thumb", "thumb()", []store.Entry{
				{Parents: store.Key{1}, Roots: store.Key{1}, Values: []any{[]byte{1, 2}, int64(2)}},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(es.DeleteAllConfigs(ctx, "thumb", []int64{1})).To(Succeed())

			entries, err := os.ReadDir(assetDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("fails cleanly when no assets directory is configured", func() {
			Expect(s.EnsureTable(ctx, "thumb", "thumb()", extSchema)).To(Succeed())
			_, err := s.PutRows(ctx, "thumb", "thumb()", []store.Entry{
				{Parents: store.Key{1}, Roots: store.Key{1}, Values: []any{[]byte{1}, int64(1)}},
			})
			Expect(err).To(MatchError(ContainSubstring("no assets directory")))
		})
	})
})
