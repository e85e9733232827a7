package domain

// ModelConfig — конфигурация одной модели, попадающая в снапшот.
type ModelConfig struct {
	Backend string            `json:"backend"`
	Model   string            `json:"model"`
	Params  map[string]string `json:"params,omitempty"`
}

// ModelSnapshot — слепок конфигурации моделей, с которой была наполнена
// коллекция. Несовпадение текущей конфигурации со снапшотом означает,
// что сохранённые эмбеддинги несовместимы с новыми.
type ModelSnapshot map[string]ModelConfig

// Equal сравнивает два снапшота по содержимому.
func (s ModelSnapshot) Equal(other ModelSnapshot) bool {
	if len(s) != len(other) {
		return false
	}

	for name, cfg := range s {
		o, ok := other[name]
		if !ok || o.Backend != cfg.Backend || o.Model != cfg.Model {
			return false
		}
		if len(o.Params) != len(cfg.Params) {
			return false
		}
		for k, v := range cfg.Params {
			if o.Params[k] != v {
				return false
			}
		}
	}

	return true
}
