package templates

import "github.com/JonMunkholm/PageImport/internal/pages"

func init() {
	registerCategory()
	registerAuthor()
	registerProduct()
}

func registerCategory() {
	pages.RegisterTemplate(pages.Template{
		Name:  "category",
		Label: "Category",
		Fields: []pages.FieldDescriptor{
			{Name: "title", Label: "Title", Type: pages.FieldTitle, Required: true},
			{Name: "summary", Label: "Summary", Type: pages.FieldText},
		},
	})
}

func registerAuthor() {
	pages.RegisterTemplate(pages.Template{
		Name:  "author",
		Label: "Author",
		Fields: []pages.FieldDescriptor{
			{Name: "title", Label: "Name", Type: pages.FieldTitle, Required: true},
			{Name: "email", Label: "Email", Type: pages.FieldEmail},
			{Name: "website", Label: "Website", Type: pages.FieldURL},
			{Name: "bio", Label: "Biography", Type: pages.FieldTextarea},
			{Name: "portrait", Label: "Portrait", Type: pages.FieldFiles, MaxFiles: 1},
			{Name: "password", Label: "Password", Type: pages.FieldPassword},
		},
	})
}

func registerProduct() {
	pages.RegisterTemplate(pages.Template{
		Name:  "product",
		Label: "Product",
		Fields: []pages.FieldDescriptor{
			{Name: "title", Label: "Title", Type: pages.FieldTitle, Required: true},
			{Name: "sku", Label: "SKU", Type: pages.FieldText},
			{Name: "price", Label: "Price", Type: pages.FieldFloat},
			{Name: "stock", Label: "Stock", Type: pages.FieldInteger},
			{Name: "in_stock", Label: "In stock", Type: pages.FieldBoolean},
			{Name: "color", Label: "Color", Type: pages.FieldOptions, Options: []string{
				"Black", "White", "Red", "Green", "Blue",
			}},
			{Name: "released", Label: "Release date", Type: pages.FieldDatetime},
			{Name: "description", Label: "Description", Type: pages.FieldTextarea},
			{Name: "images", Label: "Images", Type: pages.FieldFiles},
			{Name: "datasheet", Label: "Datasheet", Type: pages.FieldFiles, MaxFiles: 1},
			{Name: "category", Label: "Category", Type: pages.FieldPage, Reference: pages.ReferenceConfig{
				ParentPath: "/categories/",
				Template:   "category",
			}},
			{Name: "related", Label: "Related products", Type: pages.FieldPage, Reference: pages.ReferenceConfig{
				ParentPath: "/products/",
				Multiple:   true,
			}},
			{Name: "variants", Label: "Variants", Type: pages.FieldRepeater},
		},
	})
}
