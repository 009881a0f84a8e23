package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/herald-crm/herald/pkg/crm"
)

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name such as Asia/Shanghai; defaults to the server timezone"`
}

// CurrentTimeTool gives models a clock.
func CurrentTimeTool() *Tool {
	return &Tool{
		Name:        "current_time",
		Description: "Get the current date and time, optionally in a specific timezone",
		Schema:      MustSchemaFor[currentTimeArgs](),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			loc := time.Local
			if tz, ok := args["timezone"].(string); ok && tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", tz)
				}
				loc = l
			}
			return time.Now().In(loc).Format(time.RFC3339), nil
		},
	}
}

type customerLookupArgs struct {
	ID string `json:"id" jsonschema:"required,description=Customer record id"`
}

// CustomerLookupTool resolves customer records from the directory so agents
// can ground answers about a specific customer.
func CustomerLookupTool(dir crm.Directory) *Tool {
	return &Tool{
		Name:        "lookup_customer",
		Description: "Look up a customer record by id",
		Schema:      MustSchemaFor[customerLookupArgs](),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, _ := args["id"].(string)
			if id == "" {
				return "", fmt.Errorf("id is required")
			}

			c, err := dir.Customer(ctx, id)
			if err != nil {
				return "", err
			}

			data, err := json.Marshal(c)
			if err != nil {
				return "", fmt.Errorf("failed to encode customer: %w", err)
			}
			return string(data), nil
		},
	}
}

type messageSendArgs struct {
	Customer string `json:"customer" jsonschema:"required,description=Customer name the message is addressed to"`
	Channel  string `json:"channel,omitempty" jsonschema:"description=Outreach channel such as 电话 or 邮件"`
	Message  string `json:"message" jsonschema:"required,description=Message body to deliver"`
}

// MessageSendTool hands outreach messages to the outbound channel. The
// built-in implementation acknowledges delivery; an MCP server can replace
// it with a real gateway by registering a tool of the same name.
func MessageSendTool() *Tool {
	return &Tool{
		Name:        "send_message",
		Description: "Send an outreach message to a customer over the given channel",
		Schema:      MustSchemaFor[messageSendArgs](),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			customer, _ := args["customer"].(string)
			message, _ := args["message"].(string)
			if customer == "" {
				return "", fmt.Errorf("customer is required")
			}
			if message == "" {
				return "", fmt.Errorf("message is required")
			}
			channel, _ := args["channel"].(string)
			if channel == "" {
				channel = "消息"
			}
			return fmt.Sprintf("已通过%s向%s发送消息", channel, customer), nil
		},
	}
}

// RegisterBuiltins adds the built-in tools to reg.
func RegisterBuiltins(reg *Registry, dir crm.Directory) error {
	builtins := []*Tool{
		CurrentTimeTool(),
		MessageSendTool(),
	}
	if dir != nil {
		builtins = append(builtins, CustomerLookupTool(dir))
	}

	for _, t := range builtins {
		if err := reg.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}
