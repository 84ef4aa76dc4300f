package schema

// Category levels shared by the default configuration.
var (
	panCategoryLevels = []CategoryLevel{
		{Value: 0, Label: "Unknown"},
		{Value: 1, Label: "Accessory"},
		{Value: 2, Label: "Core"},
	}
	strandLevels = []CategoryLevel{
		{Value: -1, Label: "Reverse"},
		{Value: 0, Label: "Unknown"},
		{Value: 1, Label: "Forward"},
	}
)

// Default returns the richest observed configuration: the 29-field
// layout with the standard track stack, sort presets and analysis
// views. Used when no config descriptor is supplied.
func Default() *Schema {
	s, err := build(&rawConfig{
		Title:  "Genome Heatmap Dashboard",
		Fields: fieldsFor(FieldNames29),
		DataFiles: DataFiles{
			Genes:   "genes_data.json",
			Tree:    "tree_data.json",
			Cluster: "cluster_data.json",
		},
		Tracks:        defaultTracks(),
		SortPresets:   defaultSortPresets(),
		AnalysisViews: defaultAnalysisViews(),
	})
	if err != nil {
		// The default configuration is fixed at compile time.
		panic(err)
	}
	return s
}

// DefaultLegacy returns the reduced 21-field configuration. Tracks and
// views referencing fields beyond the legacy layout are omitted.
func DefaultLegacy() *Schema {
	legacy := fieldsFor(FieldNames21)

	var tracks []TrackDefinition
	for _, t := range defaultTracks() {
		if _, ok := legacy[t.Field]; ok {
			tracks = append(tracks, t)
		}
	}
	var presets []SortPreset
	for _, p := range defaultSortPresets() {
		ok := true
		for _, k := range p.Keys {
			if _, has := legacy[k.Field]; !has {
				ok = false
			}
		}
		if ok {
			presets = append(presets, p)
		}
	}
	var views []AnalysisView
	for _, v := range defaultAnalysisViews() {
		ok := true
		for _, r := range v.Rules {
			if _, has := legacy[r.Field]; !has {
				ok = false
			}
		}
		if ok {
			views = append(views, v)
		}
	}

	s, err := build(&rawConfig{
		Title:  "Genome Heatmap Dashboard",
		Fields: legacy,
		DataFiles: DataFiles{
			Genes:   "genes_data.json",
			Tree:    "tree_data.json",
			Cluster: "cluster_data.json",
		},
		Tracks:        tracks,
		SortPresets:   presets,
		AnalysisViews: views,
	})
	if err != nil {
		panic(err)
	}
	return s
}

func defaultTracks() []TrackDefinition {
	consistency := func(id, label, field string) TrackDefinition {
		return TrackDefinition{
			ID: id, Label: label, Field: field,
			Kind: KindNumeric, Min: -1, Max: 1, Colormap: "rdylgn",
		}
	}
	return []TrackDefinition{
		{ID: "strand", Label: "Strand", Field: "strand", Kind: KindCategorical, Categories: strandLevels},
		{ID: "conservation", Label: "Conservation", Field: "conservation_frac", Kind: KindNumeric, Min: 0, Max: 1, Colormap: "viridis"},
		{ID: "pan_category", Label: "Pangenome category", Field: "pan_category", Kind: KindCategorical, Categories: panCategoryLevels},
		{ID: "n_ko", Label: "KO terms", Field: "n_ko", Kind: KindNumeric, Min: 0, Max: 10, Colormap: "magma"},
		{ID: "n_cog", Label: "COG terms", Field: "n_cog", Kind: KindNumeric, Min: 0, Max: 10, Colormap: "magma"},
		{ID: "n_pfam", Label: "Pfam terms", Field: "n_pfam", Kind: KindNumeric, Min: 0, Max: 10, Colormap: "magma"},
		{ID: "n_go", Label: "GO terms", Field: "n_go", Kind: KindNumeric, Min: 0, Max: 10, Colormap: "grayred"},
		consistency("rast_cons", "RAST consistency", "rast_cons"),
		consistency("ko_cons", "KO consistency", "ko_cons"),
		consistency("go_cons", "GO consistency", "go_cons"),
		consistency("ec_cons", "EC consistency", "ec_cons"),
		consistency("avg_cons", "Average consistency", "avg_cons"),
		consistency("bakta_cons", "Bakta consistency", "bakta_cons"),
		consistency("ec_avg_cons", "EC average consistency", "ec_avg_cons"),
		{ID: "specificity", Label: "Annotation specificity", Field: "specificity", Kind: KindNumeric, Min: 0, Max: 1, Colormap: "plasma"},
		{ID: "cluster_size", Label: "Cluster size", Field: "cluster_size", Kind: KindNumeric, Min: 0, Max: 100, Colormap: "inferno"},
		// Module assignments are not populated by the current pipeline.
		{ID: "n_modules", Label: "Metabolic modules", Field: "n_modules", Kind: KindNumeric, Min: 0, Max: 10, Colormap: "magma", Placeholder: true},
	}
}

func defaultSortPresets() []SortPreset {
	return []SortPreset{
		{ID: "id", Label: "Genome order", Keys: []SortKey{{Field: "id"}}},
		{ID: "position", Label: "Start position", Keys: []SortKey{{Field: "start"}}},
		{ID: "length", Label: "Length", Keys: []SortKey{{Field: "length", Descending: true}}},
		{ID: "conservation", Label: "Conservation", Keys: []SortKey{{Field: "conservation_frac", Descending: true}, {Field: "pan_category", Descending: true}}},
		{ID: "consistency", Label: "Annotation consistency", Keys: []SortKey{{Field: "avg_cons", Descending: true}}},
		{ID: "function", Label: "Function", Keys: []SortKey{{Field: "function"}}},
	}
}

func defaultAnalysisViews() []AnalysisView {
	return []AnalysisView{
		{ID: "all", Label: "All genes"},
		{ID: "core", Label: "Core genes", Rules: []FilterRule{{Field: "pan_category", Op: "eq", Value: float64(2)}}},
		{ID: "accessory", Label: "Accessory genes", Rules: []FilterRule{{Field: "pan_category", Op: "eq", Value: float64(1)}}},
		{ID: "hypothetical", Label: "Hypothetical proteins", Rules: []FilterRule{{Field: "function", Op: "contains", Value: "hypothetical"}}},
		{ID: "low_consistency", Label: "Low annotation consistency", Rules: []FilterRule{
			{Field: "avg_cons", Op: "ge", Value: float64(0)},
			{Field: "avg_cons", Op: "lt", Value: float64(0.5)},
		}},
	}
}
