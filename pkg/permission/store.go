package permission

import (
	"github.com/open-policy-agent/opa/v1/storage"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
)

// inmemStore wraps static data (e.g. the oversight_agents role list) for the
// Rego evaluator. The data is immutable for the lifetime of the Client.
func inmemStore(data map[string]any) storage.Store {
	if data == nil {
		data = map[string]any{}
	}
	return inmem.NewFromObject(data)
}
