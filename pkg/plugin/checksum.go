package plugin

import (
	"context"
	"fmt"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

// hashSumNode folds each parent hash string into a running byte sum. With a
// nonzero modulus the total wraps after every addition.
func hashSumNode() *depc.Node {
	return &depc.Node{
		Name:    NodeImageHashSum,
		Parents: []string{NodeImageHash},
		Columns: []store.Column{
			{Name: "sum", Type: store.TypeInteger},
		},
		Schema: depc.ConfigSchema{
			{Name: "hash_sum_mod", Default: 0, HideIfDefault: true},
		},
		ChunkSize: 100,
		Compute:   computeHashSum,
	}
}

// hashProdNode folds each parent hash string into a wrapped byte product.
func hashProdNode() *depc.Node {
	return &depc.Node{
		Name:    NodeImageHashProd,
		Parents: []string{NodeImageHash},
		Columns: []store.Column{
			{Name: "product", Type: store.TypeInteger},
		},
		Schema: depc.ConfigSchema{
			{Name: "hash_prod_mod", Default: 1000, Validate: positiveInt("hash_prod_mod")},
		},
		ChunkSize: 100,
		Compute:   computeHashProd,
	}
}

func computeHashSum(ctx context.Context, g *depc.Context, parents []store.Key, cfg depc.Config) ([][]any, error) {
	hashes, err := parentHashes(ctx, g, parents)
	if err != nil {
		return nil, err
	}
	mod := cfg.Int("hash_sum_mod")
	out := make([][]any, len(hashes))
	for i, h := range hashes {
		out[i] = []any{int64(hashByteSum(h, mod))}
	}
	return out, nil
}

func computeHashProd(ctx context.Context, g *depc.Context, parents []store.Key, cfg depc.Config) ([][]any, error) {
	hashes, err := parentHashes(ctx, g, parents)
	if err != nil {
		return nil, err
	}
	mod := cfg.Int("hash_prod_mod")
	out := make([][]any, len(hashes))
	for i, h := range hashes {
		out[i] = []any{int64(hashByteProduct(h, mod))}
	}
	return out, nil
}

// parentHashes reads the already-cached hash column through the parent's
// native row ids. The executor guarantees the parent rows exist before a
// child compute runs.
func parentHashes(ctx context.Context, g *depc.Context, parents []store.Key) ([]string, error) {
	vals, err := g.Depc.GetNative(ctx, NodeImageHash, rootIDs(parents), "hash")
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("hash column holds %T, want string", v)
		}
		hashes[i] = s
	}
	return hashes, nil
}

// hashByteSum adds up the character values of the hex digest, applying the
// modulus after every addition. A zero modulus disables wrapping.
func hashByteSum(h string, mod int) int {
	total := 0
	for _, b := range []byte(h) {
		total += int(b)
		if mod > 0 {
			total %= mod
		}
	}
	return total
}

// hashByteProduct multiplies the running total by each character value plus
// one, wraps, then adds one.
func hashByteProduct(h string, mod int) int {
	total := 0
	for _, b := range []byte(h) {
		total *= int(b) + 1
		total %= mod
		total++
	}
	return total
}
