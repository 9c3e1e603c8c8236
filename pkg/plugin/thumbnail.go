package plugin

import (
	"context"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

// thumbnailNode downsamples each image payload by keeping every stride-th
// byte. The thumb column is externally stored: the store writes the payload
// to the assets directory and keeps only a reference in the row.
func thumbnailNode() *depc.Node {
	return &depc.Node{
		Name:    NodeThumbnail,
		Parents: []string{RootImages},
		Columns: []store.Column{
			{Name: "thumb", Type: store.TypeBlob, External: true},
			{Name: "size", Type: store.TypeInteger},
		},
		Schema: depc.ConfigSchema{
			{Name: "thumb_stride", Default: 8, Validate: positiveInt("thumb_stride")},
		},
		ChunkSize: 16,
		Compute:   computeThumbnail,
	}
}

func computeThumbnail(ctx context.Context, g *depc.Context, parents []store.Key, cfg depc.Config) ([][]any, error) {
	ctrl := g.Controller.(*controller.Controller)
	payloads, err := ctrl.ImageBytes(ctx, rootIDs(parents))
	if err != nil {
		return nil, err
	}
	stride := cfg.Int("thumb_stride")

	out := make([][]any, len(payloads))
	for i, data := range payloads {
		thumb := make([]byte, 0, len(data)/stride+1)
		for j := 0; j < len(data); j += stride {
			thumb = append(thumb, data[j])
		}
		out[i] = []any{thumb, int64(len(thumb))}
	}
	return out, nil
}
