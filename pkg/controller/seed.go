package controller

import (
	"context"
	"fmt"
	"math/rand"
)

// SeedSpec controls demo-database generation.
type SeedSpec struct {
	// Names is the number of distinct individuals.
	Names int
	// ImagesPerName is the number of images (one annotation each) per name.
	ImagesPerName int
	// PayloadSize is the synthetic image payload length in bytes.
	PayloadSize int
	// Seed drives the deterministic payload generator.
	Seed int64
}

// DefaultSeedSpec mirrors the layout of the original example test database:
// a handful of individuals, several sightings each.
func DefaultSeedSpec() SeedSpec {
	return SeedSpec{
		Names:         3,
		ImagesPerName: 4,
		PayloadSize:   4096,
		Seed:          42,
	}
}

// SeedDemo fills the database with deterministic synthetic entities: names,
// images with pseudo-random payload bytes, and one labeled annotation per
// image. Payloads are reproducible for a fixed spec, so hashes computed over
// a seeded database are stable across runs.
func (c *Controller) SeedDemo(ctx context.Context, spec SeedSpec) error {
	if spec.Names <= 0 || spec.ImagesPerName <= 0 || spec.PayloadSize <= 0 {
		return fmt.Errorf("invalid seed spec: %+v", spec)
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	for n := 0; n < spec.Names; n++ {
		nameID, err := c.AddName(ctx, fmt.Sprintf("individual_%03d", n+1))
		if err != nil {
			return err
		}
		for i := 0; i < spec.ImagesPerName; i++ {
			payload := make([]byte, spec.PayloadSize)
			rng.Read(payload)

			uri := fmt.Sprintf("demo://individual_%03d/sighting_%02d.raw", n+1, i+1)
			imageID, err := c.AddImage(ctx, uri, payload)
			if err != nil {
				return err
			}
			if _, err := c.AddAnnotation(ctx, imageID, nameID, 0, 0, 128, 128); err != nil {
				return err
			}
		}
	}

	c.log.Info("seeded demo database",
		"names", spec.Names,
		"images", spec.Names*spec.ImagesPerName,
		"annotations", spec.Names*spec.ImagesPerName)
	return nil
}
