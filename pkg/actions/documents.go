package actions

import (
	"context"
	"fmt"

	"github.com/go-go-golems/smartsql-chat/pkg/backend"
)

func (o *Orchestrator) HandleGetSettings(ctx context.Context) {
	o.user("settings")
	reply := backend.DecodeDocument(o.backend.GetSettings(ctx), "settings")
	if !reply.OK {
		o.system(fmt.Sprintf("Settings unavailable: %s", detailOrUnknown(reply.Detail)))
		return
	}
	o.system(reply.Document)
}

// HandleSetSettings stores doc and shows the settings the backend now holds.
func (o *Orchestrator) HandleSetSettings(ctx context.Context, doc map[string]any) {
	o.user("update settings")
	reply := backend.DecodeDocument(o.backend.SetSettings(ctx, doc), "settings")
	if !reply.OK {
		o.system(fmt.Sprintf("Settings update failed: %s", detailOrUnknown(reply.Detail)))
		return
	}
	o.system("Settings saved.")
	if reply.Document != nil {
		o.system(reply.Document)
	}
}

// HandleGetCatalog shows the local catalog. The backend reports ok:false for
// an empty catalog.
func (o *Orchestrator) HandleGetCatalog(ctx context.Context) {
	o.user("catalog")
	reply := backend.DecodeDocument(o.backend.GetCatalog(ctx), "catalog")
	if !reply.OK {
		if reply.Detail != "" {
			o.system(fmt.Sprintf("Catalog unavailable: %s", reply.Detail))
			return
		}
		o.system(MsgNoCatalog)
		return
	}
	o.system(reply.Document)
}

func (o *Orchestrator) HandleSetCatalog(ctx context.Context, doc map[string]any) {
	o.user("update catalog")
	reply := backend.DecodeDocument(o.backend.SetCatalog(ctx, doc), "catalog")
	if !reply.OK {
		o.system(fmt.Sprintf("Catalog update failed: %s", detailOrUnknown(reply.Detail)))
		return
	}
	o.system("Catalog saved.")
}
