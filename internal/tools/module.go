package tools

import (
	"fmt"
	"sort"

	"github.com/hession/haxu-mcp/internal/charcount"
	"github.com/hession/haxu-mcp/internal/lawdb"
	"github.com/hession/haxu-mcp/internal/pricing"
	"github.com/hession/haxu-mcp/internal/vectorsearch"
	"github.com/hession/haxu-mcp/internal/weather"
)

// Deps holds the clients tool modules are built from. A module whose
// dependency is nil cannot be enabled.
type Deps struct {
	Laws      *lawdb.Store
	Weather   *weather.Client
	Pricing   *pricing.Client
	CharCount *charcount.Client
	Searcher  *vectorsearch.Searcher
}

// Module builds a named group of tools.
type Module func(deps Deps) ([]Tool, error)

var modules = map[string]Module{
	"legal": func(deps Deps) ([]Tool, error) {
		if deps.Laws == nil {
			return nil, fmt.Errorf("legal module requires a law store")
		}
		return []Tool{
			NewArticleByCodeTool(deps.Laws),
			NewSearchContentTool(deps.Laws),
			NewArticleNameTool(deps.Laws),
			NewSpecificArticleTool(deps.Laws),
			NewAllLawContentsTool(deps.Laws),
		}, nil
	},
	"weather": func(deps Deps) ([]Tool, error) {
		if deps.Weather == nil {
			return nil, fmt.Errorf("weather module requires a weather client")
		}
		return []Tool{NewAlertsTool(deps.Weather), NewForecastTool(deps.Weather)}, nil
	},
	"pricing": func(deps Deps) ([]Tool, error) {
		if deps.Pricing == nil {
			return nil, fmt.Errorf("pricing module requires a pricing client")
		}
		return []Tool{NewAzurePriceTool(deps.Pricing)}, nil
	},
	"charcount": func(deps Deps) ([]Tool, error) {
		if deps.CharCount == nil {
			return nil, fmt.Errorf("charcount module requires a charcount client")
		}
		return []Tool{NewCountCharactersTool(deps.CharCount)}, nil
	},
	"semantic": func(deps Deps) ([]Tool, error) {
		if deps.Searcher == nil {
			return nil, fmt.Errorf("semantic module requires a vector searcher")
		}
		return []Tool{NewGDPRSearchTool(deps.Searcher), NewPIPLSearchTool(deps.Searcher)}, nil
	},
}

// ModuleNames lists the known modules, sorted.
func ModuleNames() []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRegistry registers the tools of each named module, in order.
func BuildRegistry(deps Deps, names []string) (*Registry, error) {
	registry := NewRegistry()
	for _, name := range names {
		module, ok := modules[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool module: %s", name)
		}
		tools, err := module(deps)
		if err != nil {
			return nil, err
		}
		for _, tool := range tools {
			if err := registry.Register(tool); err != nil {
				return nil, fmt.Errorf("module %s: %w", name, err)
			}
		}
	}
	return registry, nil
}
