// Model-name translation between the public OpenAI-style namespace and the
// upstream NIM namespace.
package gateway

import (
	"sort"
	"strings"
	"time"

	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/config"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/protocol"
)

// ModelTable maps public model identifiers to upstream identifiers.
// Pure lookup data; immutable after construction.
type ModelTable struct {
	aliases  map[string]string
	fallback string
	created  int64
}

// NewModelTable builds the table from config.
func NewModelTable(cfg config.ModelsConfig) *ModelTable {
	aliases := make(map[string]string, len(cfg.Aliases))
	for k, v := range cfg.Aliases {
		aliases[k] = v
	}
	return &ModelTable{
		aliases:  aliases,
		fallback: cfg.Default,
		created:  time.Now().Unix(),
	}
}

// Resolve translates a public model name to its upstream identifier.
// Names already in the upstream org/model namespace pass through; anything
// unknown falls back to the default model.
func (t *ModelTable) Resolve(public string) string {
	if upstream, ok := t.aliases[public]; ok {
		return upstream
	}
	if strings.Contains(public, "/") {
		return public
	}
	return t.fallback
}

// List returns the public model listing for /v1/models, sorted by ID.
func (t *ModelTable) List() protocol.ModelList {
	ids := make([]string, 0, len(t.aliases))
	for id := range t.aliases {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := protocol.ModelList{Object: "list", Data: make([]protocol.ModelInfo, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, protocol.ModelInfo{
			ID:      id,
			Object:  "model",
			Created: t.created,
			OwnedBy: "openai-nim-proxy",
		})
	}
	return list
}
