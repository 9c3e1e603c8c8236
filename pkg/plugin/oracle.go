package plugin

import (
	"context"
	"errors"
	"math/rand"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

// oracleNode scores annotation pairs by cheating: it reads the ground-truth
// name labels and reports 1.0 for a match, 0.0 otherwise. A configurable
// fallibility flips the answer with that probability, so downstream code can
// be tested against an imperfect matcher.
func oracleNode() *depc.Node {
	return &depc.Node{
		Name:    NodeOracle,
		Parents: []string{RootAnnotations, RootAnnotations},
		Columns: []store.Column{
			{Name: "score", Type: store.TypeReal},
		},
		Schema: depc.ConfigSchema{
			{Name: "oracle_fallibility", Default: 0.1, Validate: unitInterval},
			{Name: "oracle_seed", Default: 0, HideIfDefault: true},
		},
		Compute: computeOracle,
	}
}

func computeOracle(ctx context.Context, g *depc.Context, parents []store.Key, cfg depc.Config) ([][]any, error) {
	ctrl := g.Controller.(*controller.Controller)

	qids := make([]int64, len(parents))
	dids := make([]int64, len(parents))
	for i, t := range parents {
		qids[i], dids[i] = t[0], t[1]
	}
	qnames, err := ctrl.AnnotNameIDs(ctx, qids)
	if err != nil {
		return nil, err
	}
	dnames, err := ctrl.AnnotNameIDs(ctx, dids)
	if err != nil {
		return nil, err
	}

	fallibility := cfg.Float("oracle_fallibility")
	seed := int64(cfg.Int("oracle_seed"))

	out := make([][]any, len(parents))
	for i := range parents {
		score := 0.0
		if qnames[i] != 0 && qnames[i] == dnames[i] {
			score = 1.0
		}
		// One generator per pair keeps flips stable no matter how the
		// request is batched or ordered. The strict comparison guarantees
		// fallibility 0.0 never flips.
		rng := rand.New(rand.NewSource(pairSeed(seed, qids[i], dids[i])))
		if rng.Float64() < fallibility {
			score = 1.0 - score
		}
		out[i] = []any{score}
	}
	return out, nil
}

func pairSeed(seed, qid, did int64) int64 {
	h := seed
	h = h*1000003 + qid
	h = h*1000003 + did
	return h
}

func unitInterval(v any) error {
	c := depc.Config{"v": v}
	f := c.Float("v")
	if f < 0 || f > 1 {
		return errors.New("must be within [0, 1]")
	}
	return nil
}
