package depc_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

func noopCompute(_ context.Context, _ *depc.Context, parents []store.Key, _ depc.Config) ([][]any, error) {
	out := make([][]any, len(parents))
	for i := range parents {
		out[i] = []any{int64(0)}
	}
	return out, nil
}

func intNode(name string, parents ...string) *depc.Node {
	return &depc.Node{
		Name:    name,
		Parents: parents,
		Columns: []store.Column{{Name: "value", Type: store.TypeInteger}},
		Compute: noopCompute,
	}
}

var _ = Describe("Registry", func() {
	var reg *depc.Registry

	BeforeEach(func() {
		reg = depc.NewRegistry("images")
	})

	It("registers and resolves nodes", func() {
		Expect(reg.Register(intNode("feat"))).To(Succeed())
		n, err := reg.Resolve("feat")
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Name).To(Equal("feat"))
	})

	It("defaults an empty parent list to the root table", func() {
		Expect(reg.Register(intNode("feat"))).To(Succeed())
		parents, err := reg.ParentsOf("feat")
		Expect(err).NotTo(HaveOccurred())
		Expect(parents).To(Equal([]string{"images"}))
	})

	It("rejects a duplicate node name", func() {
		Expect(reg.Register(intNode("feat"))).To(Succeed())
		err := reg.Register(intNode("feat"))
		Expect(err).To(BeAssignableToTypeOf(depc.DuplicateNodeError{}))
	})

	It("rejects a name colliding with the root table", func() {
		err := reg.Register(intNode("images"))
		Expect(err).To(BeAssignableToTypeOf(depc.DuplicateNodeError{}))
	})

	It("rejects a config parameter already claimed by another node", func() {
		a := intNode("feat")
		a.Schema = depc.ConfigSchema{{Name: "feat_size", Default: 1}}
		Expect(reg.Register(a)).To(Succeed())

		b := intNode("other")
		b.Schema = depc.ConfigSchema{{Name: "feat_size", Default: 2}}
		err := reg.Register(b)
		Expect(err).To(BeAssignableToTypeOf(depc.DuplicateNodeError{}))
		Expect(err.Error()).To(ContainSubstring("feat_size"))
	})

	It("rejects an unregistered parent", func() {
		err := reg.Register(intNode("child", "missing"))
		Expect(err).To(BeAssignableToTypeOf(depc.UnknownNodeError{}))
	})

	It("resolves to UnknownNodeError for unregistered names", func() {
		_, err := reg.Resolve("nope")
		Expect(err).To(BeAssignableToTypeOf(depc.UnknownNodeError{}))
	})

	It("returns names in registration order", func() {
		Expect(reg.Register(intNode("b"))).To(Succeed())
		Expect(reg.Register(intNode("a", "b"))).To(Succeed())
		Expect(reg.Register(intNode("c", "a"))).To(Succeed())
		Expect(reg.Names()).To(Equal([]string{"b", "a", "c"}))
	})
})
