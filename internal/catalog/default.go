package catalog

// Default returns the built-in operation catalog and credit packs.
func Default() *Catalog {
	return MustNew(defaultOperations, defaultPacks)
}

var defaultOperations = []OperationDefinition{
	{
		ID:          "upload_pdf",
		Name:        "Upload PDF",
		Description: "Upload a PDF to begin working.",
		CreditCost:  0,
		Category:    "core",
		Keywords:    []string{"add", "open", "import"},
	},
	{
		ID:                 "merge_documents",
		Name:               "Merge PDFs",
		Description:        "Combine multiple PDFs into a single file.",
		CreditCost:         1,
		RequiresUpload:     true,
		RequiresSecondFile: true,
		Category:           "core",
		Unit:               "document",
		Refundable:         true,
		Keywords:           []string{"combine", "join", "append"},
	},
	{
		ID:             "split_pages",
		Name:           "Split PDF",
		Description:    "Extract selected pages into a new PDF.",
		CreditCost:     1,
		RequiresUpload: true,
		Category:       "core",
		Unit:           "page",
		Refundable:     true,
		Keywords:       []string{"separate", "extract", "pages"},
	},
	{
		ID:             "rotate_pages",
		Name:           "Rotate pages",
		Description:    "Rotate selected pages by 90, 180, or 270 degrees.",
		CreditCost:     1,
		RequiresUpload: true,
		Category:       "edit",
		Unit:           "page",
		Refundable:     true,
		Keywords:       []string{"turn", "orientation", "landscape"},
	},
	{
		ID:             "delete_pages",
		Name:           "Delete pages",
		Description:    "Remove selected pages from the document.",
		CreditCost:     1,
		RequiresUpload: true,
		Category:       "edit",
		Unit:           "page",
		Refundable:     true,
		Keywords:       []string{"remove", "drop"},
	},
	{
		ID:             "watermark",
		Name:           "Add watermark",
		Description:    "Apply a watermark to the document.",
		CreditCost:     1,
		RequiresUpload: true,
		Category:       "sign",
		Unit:           "document",
		Refundable:     true,
		Keywords:       []string{"stamp", "brand", "mark"},
	},
	{
		ID:             "normalize_pdf",
		Name:           "Normalize PDF",
		Description:    "Rebuild the PDF for consistent structure.",
		CreditCost:     1,
		RequiresUpload: true,
		Category:       "advanced",
		Unit:           "document",
		Refundable:     true,
		Keywords:       []string{"repair", "fix", "rebuild"},
	},
	{
		ID:             "export_pdf",
		Name:           "Export PDF",
		Description:    "Download the latest PDF output.",
		CreditCost:     0,
		RequiresUpload: true,
		Category:       "core",
		Keywords:       []string{"download", "save"},
	},
}

var defaultPacks = []CreditPack{
	{ID: "pack_small", Label: "Small Pack", PriceUSD: 5, Credits: 50},
	{ID: "pack_medium", Label: "Medium Pack", PriceUSD: 10, Credits: 120},
	{ID: "pack_large", Label: "Large Pack", PriceUSD: 20, Credits: 280},
}
