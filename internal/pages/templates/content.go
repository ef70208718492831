package templates

import "github.com/JonMunkholm/PageImport/internal/pages"

func init() {
	registerBasicPage()
	registerArticle()
}

func registerBasicPage() {
	pages.RegisterTemplate(pages.Template{
		Name:  "basic-page",
		Label: "Basic page",
		Fields: []pages.FieldDescriptor{
			{Name: "title", Label: "Title", Type: pages.FieldTitle, Required: true},
			{Name: "summary", Label: "Summary", Type: pages.FieldText},
			{Name: "body", Label: "Body", Type: pages.FieldTextarea},
			{Name: "images", Label: "Images", Type: pages.FieldFiles},
		},
	})
}

func registerArticle() {
	pages.RegisterTemplate(pages.Template{
		Name:  "article",
		Label: "Article",
		Fields: []pages.FieldDescriptor{
			{Name: "title", Label: "Title", Type: pages.FieldTitle, Required: true},
			{Name: "published", Label: "Published", Type: pages.FieldDatetime},
			{Name: "featured", Label: "Featured", Type: pages.FieldToggle},
			{Name: "body", Label: "Body", Type: pages.FieldTextarea},
			{Name: "hero", Label: "Hero image", Type: pages.FieldFiles, MaxFiles: 1},
			{Name: "author", Label: "Author", Type: pages.FieldPage, Reference: pages.ReferenceConfig{
				ParentPath: "/authors/",
				Template:   "author",
			}},
			{Name: "categories", Label: "Categories", Type: pages.FieldPage, Reference: pages.ReferenceConfig{
				ParentPath: "/categories/",
				Template:   "category",
				Multiple:   true,
			}},
			{Name: "source", Label: "Source link", Type: pages.FieldURL},
			{Name: "sections", Label: "Sections", Type: pages.FieldRepeater},
		},
	})
}
