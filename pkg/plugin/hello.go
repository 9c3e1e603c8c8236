package plugin

import (
	"context"
	"fmt"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
)

// helloWorld is the canonical smoke-test method: it proves the plug-in was
// injected into a live controller by reporting the database identity.
func (p *Plugin) helloWorld(ctx context.Context, c *controller.Controller, args map[string]any) (any, error) {
	images, annots, names, err := c.Counts(ctx)
	if err != nil {
		return nil, err
	}
	p.log.Info("hello world", "db_uuid", c.DBUUID())
	return map[string]any{
		"message":     fmt.Sprintf("hello world with controller db %s", c.DBUUID()),
		"db_uuid":     c.DBUUID(),
		"images":      images,
		"annotations": annots,
		"names":       names,
	}, nil
}
