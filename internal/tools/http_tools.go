package tools

import (
	"context"
	"strings"

	"github.com/hession/haxu-mcp/internal/charcount"
	"github.com/hession/haxu-mcp/internal/pricing"
	"github.com/hession/haxu-mcp/internal/upstream"
	"github.com/hession/haxu-mcp/internal/weather"
)

// NewAlertsTool lists active weather alerts for a US state.
func NewAlertsTool(client *weather.Client) Tool {
	return &Func{
		ToolName:        "get_alerts",
		ToolDescription: "Get weather alerts for a US state.",
		Params: []ParameterDef{
			{
				Name:        "state",
				Type:        TypeString,
				Description: "Two-letter US state code (e.g. CA, NY)",
				Required:    true,
			},
		},
		Fn: func(ctx context.Context, args Args) (string, error) {
			alerts, err := client.Alerts(ctx, args.String("state"))
			if err != nil {
				return "", err
			}
			if len(alerts) == 0 {
				return "", upstream.Empty("No active alerts for this state.")
			}
			formatted := make([]string, len(alerts))
			for i, a := range alerts {
				formatted[i] = weather.FormatAlert(a)
			}
			return strings.Join(formatted, "\n---\n"), nil
		},
	}
}

// NewForecastTool returns the next forecast periods for a location.
func NewForecastTool(client *weather.Client) Tool {
	return &Func{
		ToolName:        "get_forecast",
		ToolDescription: "Get weather forecast for a location.",
		Params: []ParameterDef{
			{Name: "latitude", Type: TypeNumber, Description: "Latitude of the location", Required: true},
			{Name: "longitude", Type: TypeNumber, Description: "Longitude of the location", Required: true},
		},
		Fn: func(ctx context.Context, args Args) (string, error) {
			periods, err := client.Forecast(ctx, args.Float("latitude"), args.Float("longitude"))
			if err != nil {
				return "", err
			}
			formatted := make([]string, len(periods))
			for i, p := range periods {
				formatted[i] = weather.FormatPeriod(p)
			}
			return strings.Join(formatted, "\n---\n"), nil
		},
	}
}

// NewAzurePriceTool queries Azure retail prices with an OData filter.
func NewAzurePriceTool(client *pricing.Client) Tool {
	return &Func{
		ToolName: "get_azure_price",
		ToolDescription: "Get Azure retail prices matching an OData filter expression, " +
			"e.g. serviceName eq 'Virtual Machines' and armRegionName eq 'eastus'.",
		Params: []ParameterDef{
			{
				Name:        "filter_expression",
				Type:        TypeString,
				Description: "OData filter expression for the Azure Retail Prices API",
				Required:    true,
			},
		},
		Fn: func(ctx context.Context, args Args) (string, error) {
			result, err := client.Query(ctx, args.String("filter_expression"))
			if err != nil {
				return "", err
			}
			return pricing.Format(result, client.MaxPages()), nil
		},
	}
}

// NewCountCharactersTool forwards text to the counting function.
func NewCountCharactersTool(client *charcount.Client) Tool {
	return &Func{
		ToolName:        "count_chinese_characters",
		ToolDescription: "Count the Chinese characters in a text using the character counting function.",
		Params: []ParameterDef{
			{Name: "text", Type: TypeString, Description: "The text to count", Required: true},
		},
		Fn: func(ctx context.Context, args Args) (string, error) {
			answer, err := client.Count(ctx, args.String("text"))
			if err != nil {
				return "", err
			}
			return "Chinese character count: " + answer, nil
		},
	}
}
