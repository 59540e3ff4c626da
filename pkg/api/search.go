package api

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/storage"
)

// Search serves the search entity.
type Search struct{}

// Get lists accounts whose data fields equal the query parameters. With
// ?fields=a,b each account is an object holding those fields, otherwise
// only ids are listed. Parameters that are not plain field names are
// ignored.
func (Search) Get(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	var fields []string
	for _, f := range strings.Split(in.Query.Get("fields"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	docs, err := d.Store.Find(ctx, AccountCollection, searchConditions(in.Query)...)
	if err != nil {
		return nil, fmt.Errorf("searching accounts: %w", err)
	}

	if len(fields) == 0 {
		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, doc.ID())
		}
		return ids, nil
	}

	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, project(doc, fields))
	}
	return out, nil
}

// searchConditions turns query parameters into equality conditions on
// the account data, dropping "fields" and any key that is not a single
// identifier.
func searchConditions(q dispatch.Values) []storage.Condition {
	keys := make([]string, 0, len(q))
	for k := range q {
		if k == "fields" || strings.ContainsAny(k, "$.") || storage.ValidateKey(k) != nil {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	conds := make([]storage.Condition, 0, len(keys))
	for _, k := range keys {
		var v any = q.Get(k)
		if vals := q.All(k); len(vals) > 1 {
			v = vals
		}
		conds = append(conds, storage.Eq("data."+k, v))
	}
	return conds
}

// project selects fields from the account data overlaid with its top-level
// fields. Missing fields are "".
func project(doc storage.Document, fields []string) map[string]any {
	data, _ := doc["data"].(map[string]any)
	merged := mergeDeep(data, doc)

	out := map[string]any{"account": doc.ID()}
	for _, f := range fields {
		if v, ok := merged[f]; ok {
			out[f] = v
		} else {
			out[f] = ""
		}
	}

	if slices.Contains(fields, "credentials") {
		var acc Account
		if err := fromDocument(doc, &acc); err == nil {
			out["credentials"] = acc.credentialIDs()
		}
	}
	return out
}
