package lawdb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "haxu-lawdb-test")
	if err != nil {
		t.Fatal(err)
	}

	store, err := Open(filepath.Join(tmpDir, "laws.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatal(err)
	}
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	n, err := store.Import(context.Background(), filepath.Join("testdata", "criminal_law.yaml"))
	if err != nil {
		t.Fatalf("Failed to import corpus: %v", err)
	}
	if n != 7 {
		t.Fatalf("Expected 7 imported articles, got %d", n)
	}
	return store
}

func TestArticle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	article, err := store.Article(ctx, 73)
	if err != nil {
		t.Fatalf("Failed to get article: %v", err)
	}
	if article == nil || len(article.Paragraphs) != 3 {
		t.Fatalf("Expected article 73 with 3 paragraphs, got %+v", article)
	}

	missing, err := store.Article(ctx, 999)
	if err != nil {
		t.Fatalf("Getting missing article should not error: %v", err)
	}
	if missing != nil {
		t.Error("Missing article should be nil")
	}
}

func TestParagraph(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p, err := store.Paragraph(ctx, 73, 3)
	if err != nil {
		t.Fatalf("Failed to get paragraph: %v", err)
	}
	if p != "缓刑考验期限，从判决确定之日起计算。" {
		t.Errorf("Unexpected paragraph: %s", p)
	}

	p, err = store.Paragraph(ctx, 73, 9)
	if err != nil || p != "" {
		t.Errorf("Expected empty paragraph, got %q (%v)", p, err)
	}
}

func TestByCause(t *testing.T) {
	store := setupTestStore(t)

	articles, err := store.ByCause(context.Background(), "交通肇事罪")
	if err != nil {
		t.Fatalf("ByCause failed: %v", err)
	}
	if len(articles) != 1 || articles[0].Code != 133 {
		t.Fatalf("Expected article 133, got %+v", articles)
	}
}

func TestSearchContent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	vague, err := store.SearchContent(ctx, "交通肇事", true)
	if err != nil {
		t.Fatalf("SearchContent failed: %v", err)
	}
	if len(vague) != 1 || vague[0].Code != 133 {
		t.Errorf("Expected vague match on 133, got %+v", vague)
	}

	exact, err := store.SearchContent(ctx, "交通肇事", false)
	if err != nil {
		t.Fatalf("SearchContent failed: %v", err)
	}
	if len(exact) != 0 {
		t.Errorf("Exact search should not match a fragment, got %+v", exact)
	}

	exact, err = store.SearchContent(ctx, "盗窃罪", false)
	if err != nil {
		t.Fatalf("SearchContent failed: %v", err)
	}
	if len(exact) != 1 || exact[0].Code != 264 {
		t.Errorf("Exact search should match cause, got %+v", exact)
	}

	wildcard, err := store.SearchContent(ctx, "%", true)
	if err != nil {
		t.Fatalf("SearchContent failed: %v", err)
	}
	if len(wildcard) != 0 {
		t.Errorf("LIKE wildcards must be escaped, got %d matches", len(wildcard))
	}
}

func TestAllAndUpsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 7 || all[0].Code != 73 || all[6].Code != 266 {
		t.Fatalf("Unexpected articles order: %d", len(all))
	}

	if err := store.Upsert(ctx, []Article{{Code: 73, Paragraphs: []string{"替换后的内容"}}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	article, _ := store.Article(ctx, 73)
	if len(article.Paragraphs) != 1 {
		t.Errorf("Upsert should replace paragraphs, got %d", len(article.Paragraphs))
	}
	count, _ := store.Count(ctx)
	if count != 7 {
		t.Errorf("Expected 7 articles after upsert, got %d", count)
	}

	if err := store.Upsert(ctx, []Article{{Code: 0, Paragraphs: []string{"x"}}}); err == nil {
		t.Error("Invalid article code should be rejected")
	}
}

func TestFormat(t *testing.T) {
	text := Format(&Article{Code: 219, Cause: "侵犯商业秘密罪", Paragraphs: []string{"第一款", "第二款"}})
	if !strings.HasPrefix(text, "第二百一十九条【侵犯商业秘密罪】\n第一款") {
		t.Errorf("Unexpected format: %s", text)
	}
}

func TestNumeral(t *testing.T) {
	tests := map[int]string{
		1:    "一",
		10:   "十",
		13:   "十三",
		20:   "二十",
		73:   "七十三",
		101:  "一百零一",
		110:  "一百一十",
		219:  "二百一十九",
		1001: "一千零一",
		0:    "0",
	}
	for n, expected := range tests {
		if got := Numeral(n); got != expected {
			t.Errorf("Numeral(%d) = %s, want %s", n, got, expected)
		}
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "laws.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	n, err := store.Seed(ctx)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if n != 15 {
		t.Errorf("Expected 15 seeded articles, got %d", n)
	}

	articles, err := store.ByCause(ctx, "交通肇事罪")
	if err != nil || len(articles) != 1 || articles[0].Code != 133 {
		t.Fatalf("Expected article 133 after seeding, got %+v, %v", articles, err)
	}

	// a populated store is left alone
	n, err = store.Seed(ctx)
	if err != nil || n != 0 {
		t.Errorf("Second seed wrote %d articles, err %v", n, err)
	}
}

func TestSeed_KeepsImportedData(t *testing.T) {
	store := setupTestStore(t)
	n, err := store.Seed(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Seed over imported data wrote %d articles, err %v", n, err)
	}
}
