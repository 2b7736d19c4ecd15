package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/skilletai/skillet/internal/tools"
)

// CurrentTimeTool reports the current time. A replaceable clock keeps it
// deterministic under test.
type CurrentTimeTool struct {
	tools.BaseTool

	Now func() time.Time
}

func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{
		BaseTool: tools.BaseTool{
			ToolName:        "current_time",
			ToolDescription: "Returns the current time in the requested format and timezone",
			ToolCategory:    "utility",
			ToolTags:        []string{"utility", "time"},
			ToolVersion:     "1.0.0",
			Input: tools.ToolSchema{
				"format": {
					Type:         "string",
					Description:  "Output format",
					DefaultValue: "rfc3339",
					Options:      []interface{}{"rfc3339", "date", "time", "unix"},
				},
				"timezone": {
					Type:         "string",
					Description:  "IANA timezone name, defaults to UTC",
					DefaultValue: "UTC",
				},
			},
			Output: tools.ToolSchema{
				"timestamp": {Type: "string", Description: "Formatted time"},
				"unix":      {Type: "number", Description: "Seconds since the Unix epoch"},
			},
		},
		Now: time.Now,
	}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
	zone, _ := input["timezone"].(string)
	if zone == "" {
		zone = "UTC"
	}
	location, err := time.LoadLocation(zone)
	if err != nil {
		return fmt.Errorf("unknown timezone %q: %w", zone, err)
	}

	now := t.Now().In(location)

	format, _ := input["format"].(string)
	var formatted string
	switch format {
	case "date":
		formatted = now.Format("2006-01-02")
	case "time":
		formatted = now.Format("15:04:05")
	case "unix":
		formatted = fmt.Sprintf("%d", now.Unix())
	default:
		formatted = now.Format(time.RFC3339)
	}

	output.Set("timestamp", formatted)
	output.Set("unix", now.Unix())
	return nil
}
