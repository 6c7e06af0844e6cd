package language

import (
	"errors"

	"github.com/tidwall/gjson"

	"github.com/mosaicterm/treelight/internal/syntax"
)

// ErrInvalidTable is returned for config table data that is not valid JSON.
var ErrInvalidTable = errors.New("language: invalid filetype config table")

// ParseConfigTable parses a JSON filetype configuration table of the form:
//
//	{
//	  "filetypes": [
//	    {
//	      "filetype": "vue",
//	      "grammar": "vue",
//	      "highlights": ["queries/vue/highlights.scm"],
//	      "injections": ["queries/vue/injections.scm"],
//	      "injectionNodeTypes": {"script_element": "javascript"},
//	      "infoStringLanguages": {"js": "javascript"}
//	    }
//	  ]
//	}
//
// Query paths are resolved by the asset provider relative to the data root.
func ParseConfigTable(data []byte) ([]syntax.FiletypeConfig, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidTable
	}

	var configs []syntax.FiletypeConfig
	gjson.ParseBytes(data).Get("filetypes").ForEach(func(_, entry gjson.Result) bool {
		cfg := syntax.FiletypeConfig{
			Filetype: entry.Get("filetype").String(),
			Grammar:  entry.Get("grammar").String(),
		}
		if cfg.Filetype == "" {
			return true
		}
		entry.Get("highlights").ForEach(func(_, p gjson.Result) bool {
			cfg.HighlightQueries = append(cfg.HighlightQueries, syntax.QuerySource{Path: p.String()})
			return true
		})
		entry.Get("injections").ForEach(func(_, p gjson.Result) bool {
			cfg.InjectionQueries = append(cfg.InjectionQueries, syntax.QuerySource{Path: p.String()})
			return true
		})
		nodeTypes := entry.Get("injectionNodeTypes")
		if nodeTypes.Exists() {
			cfg.InjectionNodeTypes = make(map[string]string)
			nodeTypes.ForEach(func(k, v gjson.Result) bool {
				cfg.InjectionNodeTypes[k.String()] = v.String()
				return true
			})
		}
		infoStrings := entry.Get("infoStringLanguages")
		if infoStrings.Exists() {
			cfg.InfoStringLanguages = make(map[string]string)
			infoStrings.ForEach(func(k, v gjson.Result) bool {
				cfg.InfoStringLanguages[k.String()] = v.String()
				return true
			})
		}
		configs = append(configs, cfg)
		return true
	})
	return configs, nil
}
