package gasflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gasdesk/agent-server/internal/agent/tools"
)

const ToolName = "gas_exported_quantity"

const dateLayout = "2006-01-02"

var schema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"pointLabel": {"type": "string", "minLength": 1, "description": "Connection point label, e.g. VIP Bereg"},
		"from": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$", "description": "First gas day, YYYY-MM-DD"},
		"to": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$", "description": "Last gas day, YYYY-MM-DD"}
	},
	"required": ["pointLabel", "from", "to"],
	"additionalProperties": false
}`)

// Tool exposes Client.ExportedQuantity to the agent.
type Tool struct {
	client *Client
}

func NewTool(client *Client) *Tool {
	return &Tool{client: client}
}

func (t *Tool) Name() string { return ToolName }

func (t *Tool) Description() string {
	return "Exported gas quantity (kWh) for a connection point and date range from ENTSOG transparency data. " +
		"Use it for any question about gas flow, export or quantity between countries (e.g. HU>UA) in a historical period."
}

func (t *Tool) Schema() json.RawMessage { return schema }

func (t *Tool) Validate(args map[string]any) error {
	from, err := time.Parse(dateLayout, tools.StringArg(args, "from", ""))
	if err != nil {
		return tools.Invalid("from: " + err.Error())
	}
	to, err := time.Parse(dateLayout, tools.StringArg(args, "to", ""))
	if err != nil {
		return tools.Invalid("to: " + err.Error())
	}
	if from.After(to) {
		return tools.Invalid(fmt.Sprintf("from %s is after to %s", from.Format(dateLayout), to.Format(dateLayout)))
	}
	return nil
}

func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.client.ExportedQuantity(ctx,
		tools.StringArg(args, "pointLabel", ""),
		tools.StringArg(args, "from", ""),
		tools.StringArg(args, "to", ""),
	)
}

var _ tools.Validator = (*Tool)(nil)
