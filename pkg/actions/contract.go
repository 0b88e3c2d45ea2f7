package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/smartsql-chat/pkg/backend"
)

// HandleActivate activates contract, or the last previewed contract when
// contract is empty.
func (o *Orchestrator) HandleActivate(ctx context.Context, contract json.RawMessage) {
	if len(contract) == 0 {
		contract = o.LastContract()
	}
	if len(contract) == 0 {
		o.system(MsgNoContractPreview)
		return
	}

	o.user("activate contract")
	reply := backend.DecodeActivate(o.backend.ActivateContract(ctx, contract))
	if !reply.OK {
		o.system(fmt.Sprintf("Activation failed: %s", detailOrUnknown(reply.Detail)))
		return
	}
	o.system(fmt.Sprintf("Contract activated (version %s).", reply.Version))
}

// HandleActiveContract shows the contract the backend currently enforces.
func (o *Orchestrator) HandleActiveContract(ctx context.Context) {
	o.user("active contract")
	reply := backend.DecodeActiveContract(o.backend.ActiveContract(ctx))
	if !reply.OK {
		o.system(MsgNoActiveContract)
		return
	}
	o.system(map[string]any{
		"version": reply.Version,
		"active":  reply.Active,
	})
}

// HandleExecute runs sql against the warehouse. Without confirm the backend
// only returns a dry-run estimate.
func (o *Orchestrator) HandleExecute(ctx context.Context, sql string, confirm bool) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		sql = o.LastSQL()
	}
	if sql == "" {
		o.system(MsgNoSQL)
		return
	}
	cfg := o.sessionConfig()

	mode := "dry run"
	if confirm {
		mode = "confirmed"
	}
	o.user(fmt.Sprintf("execute (%s)", mode))
	o.user(sql)

	reply := backend.DecodeExecute(o.backend.Execute(ctx, backend.ExecuteRequest{
		SQL:     sql,
		Dataset: cfg.DatasetOrDefault(),
		Confirm: confirm,
	}))
	if reply.Status == "" {
		o.system(fmt.Sprintf("Execute failed: %s", detailOrUnknown(reply.Detail)))
		return
	}

	if reply.Message != "" {
		o.system(fmt.Sprintf("[%s] %s", reply.Status, reply.Message))
	} else {
		o.system(fmt.Sprintf("[%s]", reply.Status))
	}
	if len(reply.Violations) > 0 {
		o.system(map[string]any{"violations": reply.Violations})
	}
	if reply.Estimate != nil {
		o.system(map[string]any{"estimate": reply.Estimate})
	}
	if reply.Result != nil {
		o.system(map[string]any{"result": reply.Result})
	}
}
