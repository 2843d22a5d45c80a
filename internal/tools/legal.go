package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/hession/haxu-mcp/internal/lawdb"
	"github.com/hession/haxu-mcp/internal/upstream"
)

const articleSeparator = "\n\n---\n\n"

// ArticleByCodeTool looks up an article, or one of its paragraphs.
type ArticleByCodeTool struct {
	store *lawdb.Store
}

// NewArticleByCodeTool creates the article lookup tool.
func NewArticleByCodeTool(store *lawdb.Store) *ArticleByCodeTool {
	return &ArticleByCodeTool{store: store}
}

func (t *ArticleByCodeTool) Name() string {
	return "get_article_by_code"
}

func (t *ArticleByCodeTool) Description() string {
	return "Get information by article code from Chinese Criminal Law."
}

func (t *ArticleByCodeTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "article_code",
			Type:        TypeInteger,
			Description: "The main article code (e.g., 219)",
			Required:    true,
		},
		{
			Name:        "sub_article_code",
			Type:        TypeInteger,
			Description: "The sub-article code (e.g., 1)",
			Nullable:    true,
		},
	}
}

func (t *ArticleByCodeTool) Execute(ctx context.Context, args Args) (string, error) {
	code := int(args.Int("article_code"))
	if sub := args.IntPtr("sub_article_code"); sub != nil && *sub != 0 {
		return paragraph(ctx, t.store, code, int(*sub), "No article found with the specified code.")
	}

	article, err := t.store.Article(ctx, code)
	if err != nil {
		return "", fmt.Errorf("error retrieving article information: %w", err)
	}
	if article == nil {
		return "", upstream.Empty("No article found with the specified code.")
	}
	return lawdb.Format(article), nil
}

// SpecificArticleTool returns one paragraph of an article.
type SpecificArticleTool struct {
	store *lawdb.Store
}

// NewSpecificArticleTool creates the paragraph lookup tool.
func NewSpecificArticleTool(store *lawdb.Store) *SpecificArticleTool {
	return &SpecificArticleTool{store: store}
}

func (t *SpecificArticleTool) Name() string {
	return "get_specific_article"
}

func (t *SpecificArticleTool) Description() string {
	return "Get a specific paragraph from an article in Chinese Criminal Law."
}

func (t *SpecificArticleTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "article_code",
			Type:        TypeInteger,
			Description: "The article code (e.g., 73)",
			Required:    true,
		},
		{
			Name:        "paragraph_code",
			Type:        TypeInteger,
			Description: "The paragraph code (e.g., 3)",
			Required:    true,
		},
	}
}

func (t *SpecificArticleTool) Execute(ctx context.Context, args Args) (string, error) {
	return paragraph(ctx, t.store, int(args.Int("article_code")), int(args.Int("paragraph_code")),
		"No specific paragraph found for the given article and paragraph code.")
}

func paragraph(ctx context.Context, store *lawdb.Store, code, para int, notFound string) (string, error) {
	content, err := store.Paragraph(ctx, code, para)
	if err != nil {
		return "", fmt.Errorf("error retrieving specific article paragraph: %w", err)
	}
	if content == "" {
		return "", upstream.Empty(notFound)
	}
	return content, nil
}

// SearchContentTool finds articles containing a phrase.
type SearchContentTool struct {
	store *lawdb.Store
}

// NewSearchContentTool creates the content search tool.
func NewSearchContentTool(store *lawdb.Store) *SearchContentTool {
	return &SearchContentTool{store: store}
}

func (t *SearchContentTool) Name() string {
	return "search_by_content"
}

func (t *SearchContentTool) Description() string {
	return "Search for legal articles by content in Chinese Criminal Law."
}

func (t *SearchContentTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "content",
			Type:        TypeString,
			Description: "The content to search for (e.g., '交通肇事')",
			Required:    true,
		},
		{
			Name:        "vague",
			Type:        TypeBoolean,
			Description: "Whether to use fuzzy search (default: True)",
			Default:     true,
		},
	}
}

func (t *SearchContentTool) Execute(ctx context.Context, args Args) (string, error) {
	articles, err := t.store.SearchContent(ctx, args.String("content"), args.Bool("vague"))
	if err != nil {
		return "", fmt.Errorf("error searching for content: %w", err)
	}
	if len(articles) == 0 {
		return "", upstream.Empty("No articles found matching the content.")
	}
	return joinArticles(articles), nil
}

// ArticleNameTool looks articles up by cause of action.
type ArticleNameTool struct {
	store *lawdb.Store
}

// NewArticleNameTool creates the cause-of-action lookup tool.
func NewArticleNameTool(store *lawdb.Store) *ArticleNameTool {
	return &ArticleNameTool{store: store}
}

func (t *ArticleNameTool) Name() string {
	return "get_by_article_name"
}

func (t *ArticleNameTool) Description() string {
	return "Get legal information by article name/cause of action."
}

func (t *ArticleNameTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "article_name",
			Type:        TypeString,
			Description: "The name of the article or cause of action (e.g., '交通肇事罪')",
			Required:    true,
		},
	}
}

func (t *ArticleNameTool) Execute(ctx context.Context, args Args) (string, error) {
	articles, err := t.store.ByCause(ctx, args.String("article_name"))
	if err != nil {
		return "", fmt.Errorf("error retrieving information by article name: %w", err)
	}
	if len(articles) == 0 {
		return "", upstream.Empty("No information found for the specified article name.")
	}
	return joinArticles(articles), nil
}

// AllLawContentsTool summarizes the whole corpus.
type AllLawContentsTool struct {
	store *lawdb.Store
}

// NewAllLawContentsTool creates the corpus overview tool.
func NewAllLawContentsTool(store *lawdb.Store) *AllLawContentsTool {
	return &AllLawContentsTool{store: store}
}

func (t *AllLawContentsTool) Name() string {
	return "get_all_law_contents"
}

func (t *AllLawContentsTool) Description() string {
	return "Get all contents of the Chinese Criminal Law. Returns a list of all legal provisions."
}

func (t *AllLawContentsTool) Parameters() []ParameterDef {
	return nil
}

func (t *AllLawContentsTool) Execute(ctx context.Context, args Args) (string, error) {
	articles, err := t.store.All(ctx)
	if err != nil {
		return "", fmt.Errorf("error retrieving all law contents: %w", err)
	}
	if len(articles) == 0 {
		return "", upstream.Empty("Failed to retrieve Criminal Law contents.")
	}

	formatted := make([]string, len(articles))
	for i, a := range articles {
		formatted[i] = lawdb.Format(a)
	}
	preview := formatted
	if len(formatted) > 6 {
		preview = append(append(append([]string{}, formatted[:3]...), "..."), formatted[len(formatted)-3:]...)
	}
	return fmt.Sprintf("Retrieved %d legal provisions. Here's a preview:\n\n%s",
		len(articles), strings.Join(preview, articleSeparator)), nil
}

func joinArticles(articles []*lawdb.Article) string {
	parts := make([]string, len(articles))
	for i, a := range articles {
		parts[i] = lawdb.Format(a)
	}
	return strings.Join(parts, articleSeparator)
}
