package httpapi

import (
	"net/http"

	"github.com/treiswell/fintrack/internal/dictionary"
	"github.com/treiswell/fintrack/internal/ledger"
)

// GET /v1/dictionary/categories?kind=
func (s *Server) getCategoriesDictionary(w http.ResponseWriter, r *http.Request) {
	var k *ledger.Kind
	if ks := r.URL.Query().Get("kind"); ks != "" {
		kk := ledger.Kind(ks)
		if !kk.Valid() {
			badRequest(w, "kind must be income or expense")
			return
		}
		k = &kk
	}
	kinds := []ledger.Kind{ledger.KindIncome, ledger.KindExpense}
	type kindItem struct {
		Kind       ledger.Kind              `json:"kind"`
		Categories []dictionary.CategoryDef `json:"categories"`
	}
	out := struct {
		Items []kindItem `json:"items"`
	}{Items: []kindItem{}}
	for _, kind := range kinds {
		if k != nil && *k != kind {
			continue
		}
		out.Items = append(out.Items, kindItem{Kind: kind, Categories: dictionary.CategoriesFor(&kind)})
	}
	toJSON(w, http.StatusOK, out)
}
