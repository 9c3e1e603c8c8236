package plugin

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

const randomSaltLen = 128

// hashNode derives a PBKDF2-HMAC digest over each image's payload bytes.
// When no salt is configured, every image gets its own random salt, so the
// digest is stable only within one cached row. Deterministic runs set
// hash_salt explicitly.
func hashNode() *depc.Node {
	return &depc.Node{
		Name:    NodeImageHash,
		Parents: []string{RootImages},
		Columns: []store.Column{
			{Name: "hash", Type: store.TypeText},
			{Name: "salt", Type: store.TypeText},
		},
		Schema: depc.ConfigSchema{
			{Name: "hash_algorithm", Default: "sha1", Valid: []any{"sha1", "sha256"}},
			{Name: "hash_rounds", Default: 1000000, Validate: positiveInt("hash_rounds")},
			{Name: "hash_salt", Default: "", HideIfDefault: true},
		},
		ChunkSize: 4,
		Compute:   computeHash,
	}
}

func computeHash(ctx context.Context, g *depc.Context, parents []store.Key, cfg depc.Config) ([][]any, error) {
	ctrl := g.Controller.(*controller.Controller)
	payloads, err := ctrl.ImageBytes(ctx, rootIDs(parents))
	if err != nil {
		return nil, err
	}

	var newHash func() hash.Hash
	switch cfg.String("hash_algorithm") {
	case "sha256":
		newHash = sha256.New
	default:
		newHash = sha1.New
	}
	rounds := cfg.Int("hash_rounds")
	fixedSalt := []byte(cfg.String("hash_salt"))

	out := make([][]any, len(payloads))
	for i, data := range payloads {
		salt := fixedSalt
		if len(salt) == 0 {
			salt = make([]byte, randomSaltLen)
			if _, err := rand.Read(salt); err != nil {
				return nil, fmt.Errorf("generating salt: %w", err)
			}
		}
		digest := pbkdf2.Key(data, salt, rounds, newHash().Size(), newHash)
		out[i] = []any{hex.EncodeToString(digest), hex.EncodeToString(salt)}
	}
	return out, nil
}

func positiveInt(name string) func(v any) error {
	return func(v any) error {
		c := depc.Config{name: v}
		if c.Int(name) <= 0 {
			return fmt.Errorf("must be a positive integer")
		}
		return nil
	}
}
