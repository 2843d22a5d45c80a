package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hession/haxu-mcp/internal/charcount"
	"github.com/hession/haxu-mcp/internal/config"
	"github.com/hession/haxu-mcp/internal/mcp"
	"github.com/hession/haxu-mcp/internal/tools"
)

func TestVersion(t *testing.T) {
	if version != "0.1.0" {
		t.Errorf("Expected version '0.1.0', got '%s'", version)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), "haxu-mcp v0.1.0") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"function"},
		{"client"},
		{"legal", "import"},
		{"vectors", "import"},
		{"config"},
		{"version"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("Command %v not found", path)
		}
	}
}

func TestLocalURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8000", "http://localhost:8000"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000"},
		{"https://tools.example.com", "https://tools.example.com"},
	}
	for _, tt := range tests {
		if got := localURL(tt.addr); got != tt.want {
			t.Errorf("localURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func testConfig(t *testing.T, modules ...string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	cfg.Server.Modules = modules
	cfg.Legal.DBPath = filepath.Join(dir, "laws.db")
	cfg.Legal.CorpusPath = filepath.Join("..", "..", "internal", "lawdb", "testdata", "criminal_law.yaml")
	cfg.Semantic.DBPath = filepath.Join(dir, "vectors.db")
	return cfg
}

func TestNewApp_BuildsEnabledModules(t *testing.T) {
	cfg := testConfig(t, "legal", "weather", "pricing", "charcount")

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	dispatcher, err := a.Dispatcher()
	if err != nil {
		t.Fatalf("Dispatcher failed: %v", err)
	}
	if n := dispatcher.Registry().Count(); n != 9 {
		t.Errorf("Expected 9 tools, got %d", n)
	}

	// the corpus was imported into the empty store
	result := dispatcher.Dispatch(context.Background(), "get_by_article_name", map[string]any{"article_name": "交通肇事罪"})
	if !result.Success || !strings.Contains(result.Output, "【交通肇事罪】") {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestNewApp_SeedsDefaultLegalStore(t *testing.T) {
	cfg := testConfig(t, "legal")
	cfg.Legal.CorpusPath = ""

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	dispatcher, err := a.Dispatcher()
	if err != nil {
		t.Fatalf("Dispatcher failed: %v", err)
	}
	result := dispatcher.Dispatch(context.Background(), "get_by_article_name", map[string]any{"article_name": "敲诈勒索罪"})
	if !result.Success || !strings.Contains(result.Output, "【敲诈勒索罪】") {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestNewApp_ModuleSelection(t *testing.T) {
	cfg := testConfig(t, "charcount")

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	if a.deps.Laws != nil || a.deps.Weather != nil {
		t.Error("Disabled modules should not be built")
	}
	dispatcher, err := a.Dispatcher()
	if err != nil {
		t.Fatalf("Dispatcher failed: %v", err)
	}
	list := dispatcher.Registry().List()
	if len(list) != 1 || list[0].Name() != "count_chinese_characters" {
		t.Errorf("Unexpected tools: %v", list)
	}
}

func TestNewApp_Semantic(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		cfg := testConfig(t, "semantic")
		cfg.Semantic.AzureEndpoint = ""
		cfg.Semantic.AzureAPIKey = ""
		if _, err := newApp(context.Background(), cfg); err == nil {
			t.Error("Expected error without Azure OpenAI credentials")
		}
	})

	t.Run("sqlite backend", func(t *testing.T) {
		cfg := testConfig(t, "semantic")
		cfg.Semantic.Backend = "sqlite"
		cfg.Semantic.AzureEndpoint = "http://127.0.0.1:1"
		cfg.Semantic.AzureAPIKey = "test-key"

		a, err := newApp(context.Background(), cfg)
		if err != nil {
			t.Fatalf("newApp failed: %v", err)
		}
		defer a.Close()

		dispatcher, err := a.Dispatcher()
		if err != nil {
			t.Fatalf("Dispatcher failed: %v", err)
		}
		for _, name := range []string{"gdpr_semantic_search", "China_pipl_semantic_search"} {
			if _, err := dispatcher.Registry().Resolve(name); err != nil {
				t.Errorf("Expected %s to be registered: %v", name, err)
			}
		}
	})

	t.Run("supabase without url", func(t *testing.T) {
		cfg := testConfig(t, "semantic")
		cfg.Semantic.AzureEndpoint = "http://127.0.0.1:1"
		cfg.Semantic.AzureAPIKey = "test-key"
		cfg.Semantic.SupabaseURL = ""
		if _, err := newApp(context.Background(), cfg); err == nil {
			t.Error("Expected error without a Supabase project url")
		}
	})
}

func TestNewMux_Transports(t *testing.T) {
	server := mcp.NewServer(tools.NewDispatcher(tools.NewRegistry()), mcp.Implementation{Name: "test", Version: "1"})

	tests := []struct {
		name       string
		transports []string
		method     string
		path       string
		wantStatus int
	}{
		{"sse message route", []string{"sse"}, http.MethodPost, mcp.MessagePath, http.StatusBadRequest},
		{"ws not mounted", []string{"sse"}, http.MethodGet, mcp.WSPath, http.StatusNotFound},
		{"sse not mounted", []string{"ws"}, http.MethodPost, mcp.MessagePath, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(server, config.ServerConfig{Transports: tt.transports})
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestFunctionMux(t *testing.T) {
	mux := newFunctionMux()
	req := httptest.NewRequest(http.MethodGet, charcount.Route+"?text="+url.QueryEscape("你好"), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != charcount.Message(2) {
		t.Errorf("Unexpected body: %q", rec.Body.String())
	}
}
